package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/kernel"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
)

// collector sink 回调，记录每个 piece 的第一个元素
type collector struct {
	mu     sync.Mutex
	pieces []int64
	values []float32
	bad    []string
	delay  time.Duration
}

func (c *collector) callback(actor, piece int64, blob *register.Blob) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pieces = append(c.pieces, piece)
	view := register.View[float32](blob)
	if len(view) > 0 {
		c.values = append(c.values, view[0])
	}
	return nil
}

func (c *collector) snapshot() ([]int64, []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.pieces...), append([]float32(nil), c.values...)
}

// chain 源 → copy → sink，每条边深度 depth
func chain(n int64, depth int) *plan.Plan {
	p := plan.New("chain")
	p.AddActor(&plan.ActorDesc{ID: 1, Name: "A", Kernel: plan.KernelConf{OpType: "source"}, MaxPieces: n,
		Outputs: []*plan.OutputDesc{{Name: "out", Depth: depth, Shape: []int64{4}}}}).
		AddActor(&plan.ActorDesc{ID: 2, Name: "B", Kernel: plan.KernelConf{OpType: "copy"},
			Outputs: []*plan.OutputDesc{{Name: "out", Depth: depth, Shape: []int64{4}}}}).
		AddActor(&plan.ActorDesc{ID: 3, Name: "C", Kernel: plan.KernelConf{OpType: "sink", Attrs: plan.Attrs{"callback": "collect"}}})
	_ = p.Connect(1, "out", 2, "in")
	_ = p.Connect(2, "out", 3, "in")
	return p
}

func runWithTimeout(t *testing.T, g *Graph) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Start(); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	err := g.Wait(ctx)
	if errors.Is(err, errs.ErrWaiterTimeout) {
		t.Fatalf("图没有在限定时间内结束: %+v", g.Snapshot())
	}
	return err
}

func checkTerminated(t *testing.T, g *Graph, alloc *register.HostAllocator) {
	t.Helper()
	for _, s := range g.Snapshot() {
		if s.State != actor.StateTerminated.String() {
			t.Errorf("actor %d 没有终止: %+v", s.ID, s)
		}
		for slot, c := range s.Pools {
			if c.InFlight != 0 || c.Writing != 0 {
				t.Errorf("actor %d/%s 终止时还有寄存器在外: %+v", s.ID, slot, c)
			}
			if c.Free+c.Writing+c.InFlight != c.Depth || !c.Released {
				t.Errorf("actor %d/%s 终止后计数不守恒或未释放: %+v", s.ID, slot, c)
			}
		}
	}
	if alloc != nil && alloc.LiveBuffers() != 0 {
		t.Errorf("buffer 没有全部释放: %d", alloc.LiveBuffers())
	}
}

func TestGraph_ChainDepthOne(t *testing.T) {
	const n = 50
	col := &collector{}
	alloc := register.NewHostAllocator()
	g, err := New(chain(n, 1), WithCallback("collect", col.callback), WithAllocator(alloc))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	defer g.Close()

	if err = runWithTimeout(t, g); err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	pieces, values := col.snapshot()
	if len(pieces) != n {
		t.Fatalf("sink 应该收到 %d 片, got %d", n, len(pieces))
	}
	for i := range pieces {
		if pieces[i] != int64(i) || values[i] != float32(i) {
			t.Fatalf("第 %d 片顺序或内容错误: piece=%d value=%v", i, pieces[i], values[i])
		}
	}
	checkTerminated(t, g, alloc)
}

// 下游读得慢、深度大于 1 时，缓冲区不能在读完之前被复用
func TestGraph_BufferSafety(t *testing.T) {
	const n = 40
	col := &collector{delay: time.Millisecond}
	g, err := New(chain(n, 3), WithCallback("collect", col.callback), WithDispatcher(actor.NewDefaultDispatcher(4)))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	stop := make(chan struct{})
	var violations []string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, s := range g.Snapshot() {
				for slot, c := range s.Pools {
					if c.Free+c.Writing+c.InFlight != c.Depth {
						violations = append(violations, slot)
					}
				}
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	err = runWithTimeout(t, g)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) > 0 {
		t.Fatalf("寄存器守恒被破坏: %v", violations)
	}
	_, values := col.snapshot()
	for i, v := range values {
		if v != float32(i) {
			t.Fatalf("第 %d 片数据被覆盖: %v", i, v)
		}
	}
	checkTerminated(t, g, nil)
}

// cyclePlan A → B → A 的环：反馈边预置一个寄存器，A 每一步累加源数据；
// feedbackFirst 时 A 的反馈输入排在源输入前面
func cyclePlan(t *testing.T, k int64, feedbackFirst bool) *plan.Plan {
	t.Helper()
	p := plan.New("cycle")
	p.AddActor(&plan.ActorDesc{ID: 1, Name: "S", Kernel: plan.KernelConf{OpType: "source"}, MaxPieces: k,
		Outputs: []*plan.OutputDesc{{Name: "out", Depth: 2, Shape: []int64{1}}}}).
		AddActor(&plan.ActorDesc{ID: 2, Name: "A", Kernel: plan.KernelConf{OpType: "add"},
			Outputs: []*plan.OutputDesc{{Name: "out", Depth: 1, Shape: []int64{1}}}}).
		AddActor(&plan.ActorDesc{ID: 3, Name: "B", Kernel: plan.KernelConf{OpType: "copy"},
			Outputs: []*plan.OutputDesc{{Name: "out", Depth: 1, Seed: 1, Shape: []int64{1}}}}).
		AddActor(&plan.ActorDesc{ID: 4, Name: "sink", Kernel: plan.KernelConf{OpType: "sink", Attrs: plan.Attrs{"callback": "collect"}}})
	edges := [][4]interface{}{
		{int64(1), "out", int64(2), "in"},
		{int64(3), "out", int64(2), "fb"},
		{int64(2), "out", int64(3), "in"},
		{int64(2), "out", int64(4), "in"},
	}
	if feedbackFirst {
		edges[0], edges[1] = edges[1], edges[0]
	}
	for _, e := range edges {
		if err := p.Connect(e[0].(int64), e[1].(string), e[2].(int64), e[3].(string)); err != nil {
			t.Fatal(err)
		}
	}
	p.Lookup(3).Output("out").Seed = 1
	return p
}

func runCycle(t *testing.T, feedbackFirst bool) {
	const k = 20
	col := &collector{}
	alloc := register.NewHostAllocator()
	g, err := New(cyclePlan(t, k, feedbackFirst), WithCallback("collect", col.callback), WithAllocator(alloc))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	defer g.Close()

	// 反馈边上同时 in-flight 的寄存器不能超过一个
	stop := make(chan struct{})
	var maxInFlight int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if a, ok := g.Actor(3); ok {
				if c := a.Snapshot().Pools["out"]; c.InFlight > maxInFlight {
					maxInFlight = c.InFlight
				}
			}
			time.Sleep(50 * time.Microsecond)
		}
	}()

	err = runWithTimeout(t, g)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if maxInFlight > 1 {
		t.Fatalf("反馈边同时有 %d 个寄存器 in-flight", maxInFlight)
	}

	pieces, values := col.snapshot()
	if len(values) != k {
		t.Fatalf("应该迭代 %d 次, got %d", k, len(values))
	}
	for i := range values {
		want := float32(i * (i + 1) / 2)
		if pieces[i] != int64(i) || values[i] != want {
			t.Fatalf("第 %d 次迭代错误: piece=%d value=%v want=%v", i, pieces[i], values[i], want)
		}
	}
	checkTerminated(t, g, alloc)
}

func TestGraph_CycleWithSeed(t *testing.T) {
	runCycle(t, false)
}

// 反馈输入声明在前时，piece id 仍然跟随源数据前进
func TestGraph_CycleWithSeed_FeedbackFirst(t *testing.T) {
	runCycle(t, true)
}

func TestGraph_StopIsIdempotent(t *testing.T) {
	col := &collector{}
	g, err := New(chain(5, 1), WithCallback("collect", col.callback))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if err = runWithTimeout(t, g); err != nil {
		t.Fatal(err)
	}
	g.Stop()
	g.Stop()
	if err = g.Wait(context.Background()); err != nil {
		t.Fatalf("自然结束之后 Stop 不应该改变结果: %v", err)
	}
	if err = g.Start(); !errors.Is(err, errs.ErrGraphStarted) {
		t.Fatalf("重复启动应该失败, got %v", err)
	}
	checkTerminated(t, g, nil)
}

// Stop 刚好在最后一个 actor 终止前越过了 Finished 检查：结果仍然是自然结束
func TestGraph_StopRacingNaturalEnd(t *testing.T) {
	col := &collector{}
	g, err := New(chain(5, 1), WithCallback("collect", col.callback))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if err = runWithTimeout(t, g); err != nil {
		t.Fatal(err)
	}
	g.stopped.Store(true)
	g.interrupted.Store(true)
	if err = g.Wait(context.Background()); err != nil {
		t.Fatalf("没有 actor 被打断时不应该返回 ErrGraphStopped: %v", err)
	}
	for _, s := range g.Snapshot() {
		if s.Interrupted {
			t.Fatalf("actor %d 不应该标记为被打断", s.ID)
		}
	}
}

func TestGraph_StopInfiniteSource(t *testing.T) {
	col := &collector{}
	alloc := register.NewHostAllocator()
	g, err := New(chain(0, 2), WithCallback("collect", col.callback), WithAllocator(alloc))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	select {
	case err = <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Stop 之后图没有结束: %+v", g.Snapshot())
	}
	if !errors.Is(err, errs.ErrGraphStopped) {
		t.Fatalf("外部停止应该返回 ErrGraphStopped, got %v", err)
	}
	if a, _ := g.Actor(1); !a.Snapshot().Interrupted {
		t.Fatal("无限源应该标记为被 Stop 打断")
	}
	pieces, _ := col.snapshot()
	for i := range pieces {
		if pieces[i] != int64(i) {
			t.Fatalf("停止前收到的数据顺序错误: %v", pieces)
		}
	}
	checkTerminated(t, g, alloc)
}

type failAt struct{ at int64 }

func (f failAt) Compute(ctx *kernel.Context) error {
	if ctx.ActID() == f.at {
		return errors.New("boom")
	}
	return nil
}

func TestGraph_KernelFailureAborts(t *testing.T) {
	reg := kernel.NewRegistry()
	kernel.RegisterBuiltins(reg)
	_ = reg.Register("fail", func(*plan.ActorDesc) (kernel.IKernel, error) { return failAt{at: 3}, nil })

	p := chain(100, 1)
	p.Lookup(2).Kernel.OpType = "fail"
	alloc := register.NewHostAllocator()
	g, err := New(p, WithRegistry(reg), WithCallback("collect", (&collector{}).callback), WithAllocator(alloc))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	err = runWithTimeout(t, g)
	if !errs.IsKernel(err) {
		t.Fatalf("应该返回 kernel 错误, got %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Actor != 2 {
		t.Fatalf("错误应该指明出错的 actor: %v", err)
	}

	// 下游的归还可能在 Wait 返回之后才到达中止的 actor
	settled := eventually(5*time.Second, func() bool {
		if alloc.LiveBuffers() != 0 {
			return false
		}
		for _, s := range g.Snapshot() {
			if s.State != actor.StateTerminated.String() {
				return false
			}
		}
		return true
	})
	if !settled {
		t.Fatalf("中止的 actor 应该回收全部寄存器并释放 buffer, live=%d", alloc.LiveBuffers())
	}
	checkTerminated(t, g, alloc)
	if a, _ := g.Actor(2); !a.Snapshot().Aborted {
		t.Fatal("actor 2 应该标记中止")
	}
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestGraph_ProtocolViolationAborts(t *testing.T) {
	g, err := New(chain(0, 1), WithCallback("collect", (&collector{}).callback))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if err = g.Start(); err != nil {
		t.Fatal(err)
	}
	// 归还一个从未发出过的寄存器
	if err = g.Channel().Send(message.NewReturned(3, 1, 1<<40)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = g.Wait(ctx)
	if !errs.IsProtocol(err) || !errors.Is(err, errs.ErrUnknownRegister) {
		t.Fatalf("应该返回协议错误, got %v", err)
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	alloc := register.NewHostAllocator()

	p := chain(1, 1)
	p.Lookup(3).Inputs[0].Producer = 9
	if _, err := New(p, WithAllocator(alloc)); !errs.IsConfig(err) {
		t.Fatalf("悬空绑定应该是配置错误, got %v", err)
	}

	p = chain(1, 1)
	p.Lookup(3).Kernel.OpType = "nope"
	if _, err := New(p, WithAllocator(alloc)); !errors.Is(err, errs.ErrUnknownOpType) {
		t.Fatalf("未知 op 应该是配置错误, got %v", err)
	}
	if alloc.LiveBuffers() != 0 {
		t.Fatalf("构造失败时已分配的 buffer 应该释放: %d", alloc.LiveBuffers())
	}

	p = chain(1, 1)
	p.Lookup(3).Kernel.Attrs = plan.Attrs{"callback": "missing"}
	if _, err := New(p, WithAllocator(alloc)); !errs.IsConfig(err) {
		t.Fatalf("未注册回调应该是配置错误, got %v", err)
	}
}

func TestGraph_RemoteActorsSkipped(t *testing.T) {
	p := chain(1, 1)
	p.Lookup(3).Node = "other"
	g, err := New(p, WithNode("me"))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if ids := g.LocalIDs(); len(ids) != 2 {
		t.Fatalf("只应该创建本地 actor: %v", ids)
	}
	if g.Channel().IsLocal(3) {
		t.Fatal("远端 actor 不应该有本地收件箱")
	}
}
