package channel

import (
	"sync/atomic"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/pkg/glog"
	"go.uber.org/zap"
)

// ITransport 跨进程传输，只负责把消息送到目标 actor 所在的进程
type ITransport interface {
	Send(msg *message.Message) error
	Close() error
}

// Channel 按目标 actor id 路由：本地进收件箱，远端交给传输层
type Channel struct {
	inboxes   *maputil.ConcurrentMap[int64, *Inbox]
	remotes   *maputil.ConcurrentMap[int64, string] // actor id → 节点名
	transport ITransport
	closed    atomic.Bool
}

func New() *Channel {
	return &Channel{
		inboxes: maputil.NewConcurrentMap[int64, *Inbox](16),
		remotes: maputil.NewConcurrentMap[int64, string](16),
	}
}

// SetTransport 在任何 Send 之前设置
func (c *Channel) SetTransport(t ITransport) {
	c.transport = t
}

func (c *Channel) Transport() ITransport {
	return c.transport
}

// Register 挂载本地 actor 的收件箱
func (c *Channel) Register(inbox *Inbox) {
	c.inboxes.Set(inbox.Owner(), inbox)
}

// Unregister 摘除本地 actor
func (c *Channel) Unregister(id int64) {
	c.inboxes.Delete(id)
}

// AddRemote 登记一个在其他进程运行的 actor
func (c *Channel) AddRemote(id int64, node string) {
	c.remotes.Set(id, node)
}

// IsLocal actor 的收件箱是否在本进程
func (c *Channel) IsLocal(id int64) bool {
	return c.inboxes.Has(id)
}

// Inbox 取本地收件箱
func (c *Channel) Inbox(id int64) (*Inbox, bool) {
	return c.inboxes.Get(id)
}

// Send 发送消息，不阻塞
func (c *Channel) Send(msg *message.Message) error {
	if msg == nil {
		return errs.ErrMessageIsNil
	}
	if c.closed.Load() {
		return errs.ErrChannelClosed
	}
	if inbox, ok := c.inboxes.Get(msg.Dst); ok {
		return inbox.Push(msg)
	}
	if _, ok := c.remotes.Get(msg.Dst); ok {
		if c.transport == nil {
			return errs.Wrapf(errs.ErrNoTransport, "send %s", msg)
		}
		return c.transport.Send(msg)
	}
	return errs.Wrapf(errs.ErrActorNotFound, "send %s", msg)
}

// Deliver 传输层收到的消息投递到本地收件箱
func (c *Channel) Deliver(msg *message.Message) error {
	if msg == nil {
		return errs.ErrMessageIsNil
	}
	if c.closed.Load() {
		return errs.ErrChannelClosed
	}
	inbox, ok := c.inboxes.Get(msg.Dst)
	if !ok {
		glog.Warn("deliver to unknown actor", glog.Actor(msg.Dst), zap.Stringer("msg", msg))
		return errs.Wrapf(errs.ErrActorNotFound, "deliver %s", msg)
	}
	return inbox.Push(msg)
}

// Close 关闭通道和传输层，可重复调用
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.inboxes.Range(func(_ int64, inbox *Inbox) bool {
		inbox.Close()
		return true
	})
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}
