// Package channel actor 之间的消息通道：每个 actor 一个无界收件箱，跨进程时交给传输层
package channel

import (
	"sync/atomic"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/pkg/lib"
)

// Inbox 单个 actor 的收件箱，多生产者单消费者
//
// Push 永不阻塞；每次 Push 之后调用 notify，由 actor 的 mailbox 决定是否调度。
type Inbox struct {
	owner  int64
	queue  *lib.Mpsc[*message.Message]
	notify func()
	closed atomic.Bool
}

func NewInbox(owner int64, notify func()) *Inbox {
	return &Inbox{
		owner:  owner,
		queue:  lib.NewMpsc[*message.Message](),
		notify: notify,
	}
}

func (i *Inbox) Owner() int64 { return i.owner }

// Push 追加消息
func (i *Inbox) Push(msg *message.Message) error {
	if msg == nil {
		return errs.ErrMessageIsNil
	}
	if i.closed.Load() {
		return errs.ErrChannelClosed
	}
	i.queue.Push(msg)
	if i.notify != nil {
		i.notify()
	}
	return nil
}

// Drain 取出当前全部消息，只能由所属 actor 的工作协程调用
func (i *Inbox) Drain() []*message.Message {
	if i.queue.Empty() {
		return nil
	}
	batch := make([]*message.Message, 0, i.queue.Len())
	for {
		msg, ok := i.queue.Pop()
		if !ok {
			return batch
		}
		batch = append(batch, msg)
	}
}

// Len 排队中的消息数
func (i *Inbox) Len() int {
	return i.queue.Len()
}

func (i *Inbox) Empty() bool {
	return i.queue.Empty()
}

// Close 之后的 Push 返回 ErrChannelClosed，已经入队的消息仍可 Drain
func (i *Inbox) Close() {
	i.closed.Store(true)
}

func (i *Inbox) IsClosed() bool {
	return i.closed.Load()
}
