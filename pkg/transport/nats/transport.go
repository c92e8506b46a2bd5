// Package nats 基于 NATS 的跨进程消息传输
//
// 每个 actor 一个主题 <prefix>.actor.<id>，进程启动时为本地 actor 订阅；
// 发送时按目标 actor 发布。寄存器数据随 RegisterAvailable 一起编码，接收端还原成只读镜像。
package nats

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// IDeliverer 入站消息的去处，一般是 channel.Channel
type IDeliverer interface {
	Deliver(msg *message.Message) error
}

type Transport struct {
	cfg     *Config
	codec   message.ICodec
	deliver IDeliverer

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func New(cfg *Config, deliver IDeliverer) (*Transport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrapf(err, "nats config")
	}
	codec, err := message.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg, codec: codec, deliver: deliver}, nil
}

// Subject 目标 actor 的主题
func (t *Transport) Subject(actor int64) string {
	return t.cfg.Prefix + ".actor." + strconv.FormatInt(actor, 10)
}

// Connect 建立连接
func (t *Transport) Connect(ctx context.Context) error {
	conn, err := nats.Connect(strings.Join(t.cfg.Servers, ","), toOptions(t.cfg)...)
	if err != nil {
		return errs.Wrapf(err, "connect nats %v", t.cfg.Servers)
	}
	if err = ctx.Err(); err != nil {
		conn.Close()
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	glog.Info("nats transport connected", zap.Strings("servers", t.cfg.Servers), zap.String("codec", t.codec.Name()))
	return nil
}

// Subscribe 为本地 actor 订阅入站消息
func (t *Transport) Subscribe(actors ...int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errs.ErrChannelClosed
	}
	for _, id := range actors {
		sub, err := t.conn.Subscribe(t.Subject(id), t.onMsg)
		if err != nil {
			return errs.Wrapf(err, "subscribe actor %d", id)
		}
		t.subs = append(t.subs, sub)
	}
	// 订阅必须在对端开始发送前生效
	return t.conn.Flush()
}

func (t *Transport) onMsg(m *nats.Msg) {
	msg, err := t.codec.Decode(m.Data)
	if err != nil {
		glog.Error("nats decode failed", zap.String("subject", m.Subject), zap.Error(err))
		return
	}
	if err = t.deliver.Deliver(msg); err != nil {
		glog.Warn("nats deliver failed", glog.Actor(msg.Dst), zap.Stringer("msg", msg), zap.Error(err))
	}
}

// Send 实现 channel.ITransport
func (t *Transport) Send(msg *message.Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errs.ErrChannelClosed
	}
	data, err := t.codec.Encode(msg)
	if err != nil {
		return err
	}
	return conn.Publish(t.Subject(msg.Dst), data)
}

// Close 取消订阅并排空连接，可重复调用
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil
	err := t.conn.Drain()
	t.conn = nil
	return err
}
