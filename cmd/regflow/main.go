// regflow 加载 plan 运行一张数据流图
//
//	regflow -config configs/engine.yaml -plan configs/plan.yaml -status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/config"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/lib/grs"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "engine config file (yaml)")
		planPath   = flag.String("plan", "", "plan file (yaml), overrides plan in config")
		status     = flag.Bool("status", false, "print final actor snapshots as json")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %+v\n", err)
			os.Exit(2)
		}
	}
	if *planPath != "" {
		cfg.Plan = *planPath
	}
	if cfg.Plan == "" {
		fmt.Fprintln(os.Stderr, "no plan given")
		flag.Usage()
		os.Exit(2)
	}

	glog.Init(&cfg.Glog, zap.String("job", cfg.Job.Name), zap.String("node", cfg.Job.Node))
	defer glog.Stop()
	grs.SetPanicHandler(func(r any) {
		glog.Error("background goroutine panic", zap.Any("panic", r), zap.Stack("stack"))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	snaps, err := run(ctx, cfg)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if werr := grs.Wait(waitCtx); werr != nil {
		glog.Warn("background goroutines", zap.Error(werr))
	}
	waitCancel()
	if *status {
		printStatus(os.Stdout, snaps)
	} else {
		for _, s := range snaps {
			glog.Info("actor finished", glog.Actor(s.ID), zap.String("name", s.Name), zap.String("state", s.State),
				zap.Int64("acts", s.Acts), zap.Bool("aborted", s.Aborted))
		}
	}
	if err != nil {
		var e *errs.Error
		fields := []zap.Field{zap.Error(err)}
		if errors.As(err, &e) {
			fields = append(fields, zap.Stringer("category", e.Category), glog.Actor(e.Actor), glog.Slot(e.Slot))
		}
		glog.Error("run failed", fields...)
		glog.Stop()
		os.Exit(1)
	}
}

func printStatus(w *os.File, snaps []actor.Snapshot) {
	data, err := statusJSON(snaps)
	if err != nil {
		glog.Error("marshal status", zap.Error(err))
		return
	}
	fmt.Fprintln(w, string(data))
}
