package lib

import (
	"sync"
	"testing"
)

func TestMpsc_Order(t *testing.T) {
	q := NewMpsc[int]()
	if !q.Empty() {
		t.Fatal("新队列应该为空")
	}
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	if q.Len() != 10 {
		t.Fatalf("期望长度 10，实际 %d", q.Len())
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("期望 %d，实际 %d ok=%v", i, v, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("队列已空，Pop 应该返回 false")
	}
}

// TestMpsc_PerProducerOrder 多个生产者并发写入，单个生产者内部顺序不变
func TestMpsc_PerProducerOrder(t *testing.T) {
	const producers, perProducer = 8, 1000
	q := NewMpsc[[2]int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	count := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		if v[1] != last[v[0]]+1 {
			t.Fatalf("生产者 %d 顺序错乱: 上一个 %d 当前 %d", v[0], last[v[0]], v[1])
		}
		last[v[0]] = v[1]
		count++
	}
	if count != producers*perProducer {
		t.Fatalf("期望 %d 条，实际 %d", producers*perProducer, count)
	}
}
