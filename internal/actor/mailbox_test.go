package actor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/message"
)

func testMailbox(t *testing.T, d IDispatcher) {
	t.Helper()
	const senders, perSender = 8, 1000
	var (
		total   atomic.Int64
		inside  atomic.Int32
		overlap atomic.Bool
		mu      sync.Mutex
		last    = make(map[int64]int64)
		ordered = true
	)
	mb := newMailbox(1, d, func(batch []*message.Message) {
		if inside.Add(1) > 1 {
			overlap.Store(true)
		}
		for _, msg := range batch {
			mu.Lock()
			if prev, ok := last[msg.Src]; ok && msg.RegisterID != prev+1 {
				ordered = false
			}
			last[msg.Src] = msg.RegisterID
			mu.Unlock()
		}
		total.Add(int64(len(batch)))
		inside.Add(-1)
	})

	var wg sync.WaitGroup
	for s := 1; s <= senders; s++ {
		wg.Add(1)
		go func(src int64) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_ = mb.Inbox().Push(message.NewReturned(src, 1, int64(i)))
			}
		}(int64(s))
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for total.Load() < senders*perSender {
		if time.Now().After(deadline) {
			t.Fatalf("消息没有全部处理: %d", total.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if overlap.Load() {
		t.Fatal("同一个 mailbox 被并发处理")
	}
	mu.Lock()
	defer mu.Unlock()
	if !ordered {
		t.Fatal("同一来源的消息顺序被打乱")
	}
}

func TestMailbox_GoroutineDispatcher(t *testing.T) {
	testMailbox(t, NewDefaultDispatcher(10))
}

func TestMailbox_PoolDispatcher(t *testing.T) {
	d, err := NewPoolDispatcher(2, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	testMailbox(t, d)
}
