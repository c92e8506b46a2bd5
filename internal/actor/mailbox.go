package actor

import (
	"runtime"
	"sync/atomic"

	"github.com/dzm2020/regflow/internal/channel"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/pkg/glog"
	"go.uber.org/zap"
)

const (
	idle int32 = iota
	running
)

// Mailbox 收件箱 + 调度：同一时刻只有一个协程在处理同一个 actor 的消息
type Mailbox struct {
	id           int64
	inbox        *channel.Inbox
	invoker      func(batch []*message.Message)
	dispatch     IDispatcher
	dispatchStat atomic.Int32
}

func newMailbox(id int64, dispatcher IDispatcher, invoker func(batch []*message.Message)) *Mailbox {
	mb := &Mailbox{
		id:       id,
		invoker:  invoker,
		dispatch: dispatcher,
	}
	mb.inbox = channel.NewInbox(id, mb.schedule)
	return mb
}

func (mb *Mailbox) Inbox() *channel.Inbox {
	return mb.inbox
}

// schedule 调度消息处理
// 使用 CAS 确保同一时间只有一个 goroutine 在处理消息队列
func (mb *Mailbox) schedule() {
	if !mb.dispatchStat.CompareAndSwap(idle, running) {
		return
	}
	if err := mb.dispatch.Schedule(mb.process, func(err interface{}) {
		glog.Error("mailbox panic", glog.Actor(mb.id), zap.Any("panic", err), zap.Stack("stack"))
	}); err != nil {
		mb.dispatchStat.Store(idle)
		glog.Error("mailbox schedule failed", glog.Actor(mb.id), zap.Error(err))
	}
}

// process 消息处理入口
// 恢复为 idle 之后再检查一次队列：恢复前一刻入队的消息看到的是 running，不会自己调度
func (mb *Mailbox) process() {
	defer func() {
		mb.dispatchStat.Store(idle)
		if mb.inbox.Len() > 0 {
			mb.schedule()
		}
	}()
	mb.run()
}

// run 每次取出一批消息交给 invoker，处理一定数量后让出 CPU
func (mb *Mailbox) run() {
	throughput := mb.dispatch.Throughput()
	var processed int
	for {
		batch := mb.inbox.Drain()
		if len(batch) == 0 {
			return
		}
		mb.invoker(batch)
		processed += len(batch)
		if throughput > 0 && processed >= throughput {
			processed = 0
			runtime.Gosched()
		}
	}
}

// IsEmpty 检查队列是否为空
func (mb *Mailbox) IsEmpty() bool {
	return mb.inbox.Len() == 0
}
