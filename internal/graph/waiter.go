package graph

import (
	"context"
	"sync/atomic"

	"github.com/dzm2020/regflow/internal/errs"
)

// doneWaiter 等待固定数量的 actor 结束
type doneWaiter struct {
	remaining atomic.Int64
	ch        chan struct{}
}

func newDoneWaiter(n int) *doneWaiter {
	w := &doneWaiter{ch: make(chan struct{})}
	w.remaining.Store(int64(n))
	if n == 0 {
		close(w.ch)
	}
	return w
}

// Done 每个 actor 调用一次
func (w *doneWaiter) Done() {
	if w.remaining.Add(-1) == 0 {
		close(w.ch)
	}
}

func (w *doneWaiter) Finished() bool {
	select {
	case <-w.ch:
		return true
	default:
		return false
	}
}

func (w *doneWaiter) Wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return errs.Wrapf(errs.ErrWaiterTimeout, "%d actors still running: %v", w.remaining.Load(), ctx.Err())
	}
}
