package actor

import (
	"errors"

	"github.com/dzm2020/regflow/pkg/lib/grs"
	"github.com/panjf2000/ants/v2"
)

// IDispatcher 决定 mailbox 的处理函数在哪个协程上执行
type IDispatcher interface {
	Schedule(f func(), recoverFun func(err interface{})) error
	Throughput() int
}

// 协程调度器，每次调度起一个新协程
type goroutineDispatcher int

func NewDefaultDispatcher(throughput int) IDispatcher {
	return goroutineDispatcher(throughput)
}

func (goroutineDispatcher) Schedule(fn func(), recoverFun func(err interface{})) error {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				recoverFun(err)
			}
		}()
		fn()
	}()
	return nil
}

func (d goroutineDispatcher) Throughput() int {
	return int(d)
}

// 同步调度器，在调用者协程上直接执行，测试用
type synchronizedDispatcher int

func NewSynchronizedDispatcher(throughput int) IDispatcher {
	return synchronizedDispatcher(throughput)
}

func (synchronizedDispatcher) Schedule(fn func(), recoverFun func(err interface{})) error {
	defer func() {
		if err := recover(); err != nil {
			recoverFun(err)
		}
	}()
	fn()
	return nil
}

func (d synchronizedDispatcher) Throughput() int {
	return int(d)
}

// PoolDispatcher 协程池调度器
//
// 池是非阻塞的：发送方可能正是池里的某个 actor，阻塞等待空闲协程会让整张图互相等死，
// 池满时退化为直接起协程。
type PoolDispatcher struct {
	pool       *grs.Pool
	throughput int
}

func NewPoolDispatcher(size, throughput int) (*PoolDispatcher, error) {
	pool, err := grs.NewPool(size, nil, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &PoolDispatcher{pool: pool, throughput: throughput}, nil
}

func (d *PoolDispatcher) Schedule(fn func(), recoverFun func(err interface{})) error {
	task := func() {
		defer func() {
			if err := recover(); err != nil {
				recoverFun(err)
			}
		}()
		fn()
	}
	err := d.pool.Submit(task)
	if errors.Is(err, ants.ErrPoolOverload) {
		go task()
		return nil
	}
	return err
}

func (d *PoolDispatcher) Throughput() int {
	return d.throughput
}

// Running 正在运行的 mailbox 数
func (d *PoolDispatcher) Running() int {
	return d.pool.Running()
}

// Close 释放协程池
func (d *PoolDispatcher) Close() error {
	return d.pool.Release(releaseTimeout)
}
