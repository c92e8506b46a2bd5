package main

import (
	"context"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/config"
)

func TestRun_DemoPlan(t *testing.T) {
	for _, d := range []string{config.DispatcherPool, config.DispatcherGoroutine} {
		cfg := config.Default()
		cfg.Plan = "../../configs/plan.yaml"
		cfg.Scheduler.Dispatcher = d
		cfg.Scheduler.PoolSize = 8
		cfg.Watchdog.Interval = 20 * time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snaps, err := run(ctx, cfg)
		cancel()
		if err != nil {
			t.Fatalf("%s: 运行失败: %+v", d, err)
		}
		if len(snaps) != 5 {
			t.Fatalf("%s: 应该有 5 个 actor, 实际 %d", d, len(snaps))
		}
		for _, s := range snaps {
			if s.State != actor.StateTerminated.String() || s.Aborted {
				t.Fatalf("%s: actor %d 未正常结束: %+v", d, s.ID, s)
			}
		}
		if snaps[0].Acts != 16 {
			t.Fatalf("%s: source 应该执行 16 次, 实际 %d", d, snaps[0].Acts)
		}
		if snaps[4].Acts < 16 {
			t.Fatalf("%s: sink 至少执行 16 次, 实际 %d", d, snaps[4].Acts)
		}
		if _, err = statusJSON(snaps); err != nil {
			t.Fatalf("%s: 状态编码失败: %v", d, err)
		}
	}
}

func TestRun_BadPlan(t *testing.T) {
	cfg := config.Default()
	cfg.Plan = "missing.yaml"
	if _, err := run(context.Background(), cfg); err == nil {
		t.Fatal("plan 不存在应该报错")
	}
}
