package channel

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/message"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []*message.Message
	closed bool
}

func (f *fakeTransport) Send(msg *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestInbox_FIFOPerSource(t *testing.T) {
	var notified atomic.Int32
	inbox := NewInbox(1, func() { notified.Add(1) })

	const producers, perProducer = 4, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(src int64) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = inbox.Push(&message.Message{Kind: message.KindRegisterReturned, Src: src, Dst: 1, RegisterID: int64(i)})
			}
		}(int64(p + 10))
	}
	wg.Wait()

	if int(notified.Load()) != producers*perProducer {
		t.Fatalf("每次 Push 都应该通知, got %d", notified.Load())
	}
	batch := inbox.Drain()
	if len(batch) != producers*perProducer {
		t.Fatalf("Drain 数量错误: %d", len(batch))
	}
	last := make(map[int64]int64)
	for _, msg := range batch {
		if prev, ok := last[msg.Src]; ok && msg.RegisterID != prev+1 {
			t.Fatalf("来源 %d 顺序被打乱: %d after %d", msg.Src, msg.RegisterID, prev)
		}
		last[msg.Src] = msg.RegisterID
	}
	if inbox.Drain() != nil || !inbox.Empty() {
		t.Fatal("Drain 之后应该为空")
	}
}

func TestInbox_Close(t *testing.T) {
	inbox := NewInbox(1, nil)
	_ = inbox.Push(message.NewCommand(1, message.CmdStart))
	inbox.Close()
	if err := inbox.Push(message.NewCommand(1, message.CmdStop)); !errors.Is(err, errs.ErrChannelClosed) {
		t.Fatalf("关闭后 Push 应该失败, got %v", err)
	}
	if len(inbox.Drain()) != 1 {
		t.Fatal("关闭前入队的消息仍然可以取出")
	}
	if err := inbox.Push(nil); !errors.Is(err, errs.ErrMessageIsNil) {
		t.Fatalf("nil 消息应该报错, got %v", err)
	}
}

func TestChannel_Route(t *testing.T) {
	ch := New()
	local := NewInbox(1, nil)
	ch.Register(local)
	ch.AddRemote(2, "node-b")

	if err := ch.Send(message.NewReturned(3, 1, 7)); err != nil {
		t.Fatalf("本地发送失败: %v", err)
	}
	if local.Len() != 1 {
		t.Fatal("本地消息应该进收件箱")
	}
	if err := ch.Send(message.NewReturned(1, 2, 7)); !errors.Is(err, errs.ErrNoTransport) {
		t.Fatalf("没有传输层时发往远端应该失败, got %v", err)
	}

	tr := &fakeTransport{}
	ch.SetTransport(tr)
	if err := ch.Send(message.NewReturned(1, 2, 7)); err != nil {
		t.Fatalf("远端发送失败: %v", err)
	}
	if len(tr.sent) != 1 || tr.sent[0].Dst != 2 {
		t.Fatal("远端消息应该交给传输层")
	}
	if err := ch.Send(message.NewReturned(1, 99, 7)); !errors.Is(err, errs.ErrActorNotFound) {
		t.Fatalf("未知 actor 应该返回 ErrActorNotFound, got %v", err)
	}
	if !ch.IsLocal(1) || ch.IsLocal(2) {
		t.Fatal("IsLocal 判断错误")
	}

	if err := ch.Deliver(message.NewReturned(2, 1, 8)); err != nil || local.Len() != 2 {
		t.Fatalf("Deliver 失败: %v", err)
	}
	if err := ch.Deliver(message.NewReturned(2, 5, 8)); !errors.Is(err, errs.ErrActorNotFound) {
		t.Fatalf("Deliver 到未知 actor 应该失败, got %v", err)
	}

	_ = ch.Close()
	_ = ch.Close()
	if !tr.closed || !local.IsClosed() {
		t.Fatal("Close 应该关闭传输层和收件箱")
	}
	if err := ch.Send(message.NewReturned(3, 1, 7)); !errors.Is(err, errs.ErrChannelClosed) {
		t.Fatalf("关闭后发送应该失败, got %v", err)
	}
}
