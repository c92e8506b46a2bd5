package grs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Panic(t *testing.T) {
	var caught atomic.Value
	p, err := NewPool(2, func(r any) { caught.Store(r) })
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	_ = p.Submit(func() { defer wg.Done(); panic("boom") })
	var ran atomic.Bool
	_ = p.Submit(func() { defer wg.Done(); ran.Store(true) })
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for p.PanicCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.PanicCount() != 1 || caught.Load() != "boom" {
		t.Fatalf("panic 应该被捕获一次, count=%d", p.PanicCount())
	}
	if !ran.Load() {
		t.Fatal("panic 不应该影响其他任务")
	}
}

func TestGo_Wait(t *testing.T) {
	var caught atomic.Int32
	SetPanicHandler(func(any) { caught.Add(1) })
	defer SetPanicHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		Go(ctx, func(ctx context.Context) { <-ctx.Done() })
	}
	Go(ctx, func(ctx context.Context) { panic("x") })

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	if err := Wait(short); err == nil {
		t.Fatal("协程未退出时 Wait 应该超时")
	}
	stop()

	cancel()
	long, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := Wait(long); err != nil {
		t.Fatalf("协程应该全部退出: %v", err)
	}
	if Count() != 0 || caught.Load() != 1 {
		t.Fatalf("count=%d caught=%d", Count(), caught.Load())
	}
}
