// Package grs 协程管理：ants 协程池 + 带 panic 保护的后台协程
package grs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Pool 对 ants.Pool 的简单封装，统计 panic 次数
type Pool struct {
	pool       *ants.Pool
	panicCount atomic.Uint64
	onPanic    func(any)
}

// NewPool 创建协程池，size <= 0 时使用 ants 默认容量
func NewPool(size int, onPanic func(any), opts ...ants.Option) (*Pool, error) {
	p := &Pool{onPanic: onPanic}
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	opts = append(opts, ants.WithPanicHandler(p.handlePanic))
	pool, err := ants.NewPool(size, opts...)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) handlePanic(r any) {
	p.panicCount.Add(1)
	if p.onPanic != nil {
		p.onPanic(r)
	}
}

// Submit 提交任务，池已关闭时返回 ants.ErrPoolClosed
func (p *Pool) Submit(fn func()) error {
	return p.pool.Submit(fn)
}

// Running 正在执行的任务数
func (p *Pool) Running() int {
	return p.pool.Running()
}

func (p *Pool) PanicCount() uint64 {
	return p.panicCount.Load()
}

// Release 关闭协程池，等待运行中的任务结束，超时返回错误
func (p *Pool) Release(timeout time.Duration) error {
	return p.pool.ReleaseTimeout(timeout)
}

var (
	group        sync.WaitGroup
	panicHandler atomic.Pointer[func(any)]
	goCount      atomic.Int64
)

// SetPanicHandler 设置后台协程的 panic 处理函数
func SetPanicHandler(handler func(any)) {
	panicHandler.Store(&handler)
}

// Go 启动一个受管理的后台协程
func Go(ctx context.Context, f func(ctx context.Context)) {
	group.Add(1) // 启动前Add，避免竞态
	goCount.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if h := panicHandler.Load(); h != nil && *h != nil {
					(*h)(r)
				}
			}
			goCount.Add(-1)
			group.Done()
		}()
		f(ctx)
	}()
}

// Count 当前存活的后台协程数
func Count() int64 {
	return goCount.Load()
}

// Wait 等待所有后台协程退出，ctx 到期返回错误
func Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待协程退出超时，剩余 %d 个", goCount.Load())
	}
}
