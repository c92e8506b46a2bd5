package main

import (
	"context"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/channel"
	"github.com/dzm2020/regflow/internal/config"
	"github.com/dzm2020/regflow/internal/diag"
	"github.com/dzm2020/regflow/internal/graph"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/lib/grs"
	"github.com/dzm2020/regflow/pkg/register"
	natsTransport "github.com/dzm2020/regflow/pkg/transport/nats"
	"github.com/dzm2020/regflow/pkg/utils/serializer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// run 构图并运行到结束，返回最终快照和第一个错误
func run(ctx context.Context, cfg *config.Config) ([]actor.Snapshot, error) {
	p, err := plan.LoadFile(cfg.Plan)
	if err != nil {
		return nil, err
	}

	dispatcher, closeDispatcher, err := newDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	defer closeDispatcher()

	ch := channel.New()
	opts := []graph.Option{
		graph.WithChannel(ch),
		graph.WithDispatcher(dispatcher),
		graph.WithJobName(cfg.Job.Name),
		graph.WithNode(cfg.Job.Node),
		graph.WithCallback("print", printPiece),
	}

	var tr *natsTransport.Transport
	if cfg.Transport.Type == config.TransportNats {
		if tr, err = natsTransport.New(&cfg.Transport.Nats, ch); err != nil {
			return nil, err
		}
		if err = tr.Connect(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, graph.WithTransport(tr))
	}

	g, err := graph.New(p, opts...)
	if err != nil {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, err
	}
	defer g.Close()
	if tr != nil {
		if err = tr.Subscribe(g.LocalIDs()...); err != nil {
			return nil, err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	if cfg.Watchdog.Interval > 0 {
		wd := diag.New(g, watchdogOptions(watchCtx, cfg)...)
		eg.Go(func() error {
			return wd.Run(watchCtx)
		})
	}
	eg.Go(func() error {
		defer stopWatch()
		return g.Run(ctx)
	})
	err = eg.Wait()
	return g.Snapshot(), err
}

func newDispatcher(cfg *config.Config) (actor.IDispatcher, func(), error) {
	sc := cfg.Scheduler
	switch sc.Dispatcher {
	case config.DispatcherGoroutine:
		return actor.NewDefaultDispatcher(sc.Throughput), func() {}, nil
	case config.DispatcherSync:
		return actor.NewSynchronizedDispatcher(sc.Throughput), func() {}, nil
	default:
		d, err := actor.NewPoolDispatcher(sc.PoolSize, sc.Throughput)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	}
}

func watchdogOptions(ctx context.Context, cfg *config.Config) []diag.Option {
	wc := cfg.Watchdog
	opts := []diag.Option{diag.WithInterval(wc.Interval), diag.WithStallTicks(wc.StallTicks)}
	if wc.Redis.Addr == "" {
		return opts
	}
	r, err := diag.NewRedisReporter(wc.Redis.Addr, wc.Redis.Key, 10*wc.Interval, "json")
	if err != nil {
		glog.Warn("redis reporter disabled", zap.Error(err))
		return opts
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err = r.Ping(pingCtx); err != nil {
		glog.Warn("redis unreachable, reporter disabled", zap.String("addr", wc.Redis.Addr), zap.Error(err))
		_ = r.Close()
		return opts
	}
	grs.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		_ = r.Close()
	})
	return append(opts, diag.WithReporter(r))
}

// printPiece sink 的 print 回调
func printPiece(actorID, piece int64, blob *register.Blob) error {
	if blob == nil {
		glog.Info("piece", glog.Actor(actorID), glog.Piece(piece), zap.Bool("empty", true))
		return nil
	}
	glog.Info("piece", glog.Actor(actorID), glog.Piece(piece),
		zap.Stringer("dtype", blob.DType),
		zap.Int64s("shape", blob.Shape),
		zap.Int64("valid", blob.ValidElemCount()))
	return nil
}

func statusJSON(snaps []actor.Snapshot) ([]byte, error) {
	return serializer.Json.Marshal(snaps)
}
