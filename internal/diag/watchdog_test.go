package diag

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
)

type fakeSource struct {
	mu    sync.Mutex
	snaps []actor.Snapshot
}

func (f *fakeSource) Snapshot() []actor.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]actor.Snapshot(nil), f.snaps...)
}

func (f *fakeSource) set(snaps ...actor.Snapshot) {
	f.mu.Lock()
	f.snaps = snaps
	f.mu.Unlock()
}

type fakeReporter struct {
	n atomic.Int32
}

func (r *fakeReporter) Report(ctx context.Context, snaps []actor.Snapshot) error {
	r.n.Add(1)
	return nil
}

func live(id, acts int64) actor.Snapshot {
	return actor.Snapshot{ID: id, State: actor.StateWaitingForOutputSlot.String(), Acts: acts}
}

func TestWatchdog_DetectsStall(t *testing.T) {
	src := &fakeSource{}
	var fired int
	w := New(src, WithStallTicks(3), WithOnStall(func(snaps []actor.Snapshot) { fired++ }))

	src.set(live(1, 1), live(2, 0))
	w.Tick()
	src.set(live(1, 2), live(2, 1))
	w.Tick()
	for i := 0; i < 2; i++ {
		w.Tick()
	}
	if w.Stalled() || fired != 0 {
		t.Fatal("连续两次无进展不应视为停滞")
	}
	w.Tick()
	if !w.Stalled() || fired != 1 {
		t.Fatalf("连续三次无进展应视为停滞, fired=%d", fired)
	}
	w.Tick()
	if fired != 1 {
		t.Fatal("同一次停滞只应回调一次")
	}

	src.set(live(1, 3), live(2, 1))
	w.Tick()
	if w.Stalled() {
		t.Fatal("恢复进展后应清除停滞标记")
	}
}

func TestWatchdog_FinishedGraphIsNotStalled(t *testing.T) {
	src := &fakeSource{}
	src.set(
		actor.Snapshot{ID: 1, State: actor.StateTerminated.String(), Acts: 5},
		actor.Snapshot{ID: 2, State: actor.StateDraining.String(), Aborted: true},
	)
	w := New(src, WithStallTicks(1))
	for i := 0; i < 5; i++ {
		w.Tick()
	}
	if w.Stalled() {
		t.Fatal("全部结束的图不应视为停滞")
	}
}

func TestWatchdog_Run(t *testing.T) {
	src := &fakeSource{}
	src.set(live(1, 0))
	rep := &fakeReporter{}
	w := New(src, WithInterval(10*time.Millisecond), WithStallTicks(2), WithReporter(rep))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if rep.n.Load() < 2 {
		t.Fatalf("应该多次上报, 实际 %d", rep.n.Load())
	}
	if !w.Stalled() {
		t.Fatal("快照一直不变应视为停滞")
	}
	w.Stop()
}
