// Package graph 执行图驱动：按计划创建全部本地 actor，启动、等待结束、广播停止
package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/duke-git/lancet/v2/convertor"
	"github.com/duke-git/lancet/v2/maputil"
	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/channel"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/lib/grs"
	"go.uber.org/zap"
)

// Graph 一次作业的执行图
type Graph struct {
	plan   *plan.Plan
	job    *job.Context
	ch     *channel.Channel
	opts   *Options
	actors *maputil.ConcurrentMap[int64, *actor.Actor]
	local  []int64 // 本地 actor id，升序
	waiter *doneWaiter

	started     atomic.Bool
	stopped     atomic.Bool
	interrupted atomic.Bool

	mu  sync.Mutex
	err error
}

// New 校验计划并构造全部本地 actor，任何配置错误都在这里返回，此时还没有消息流动
func New(p *plan.Plan, options ...Option) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts := loadOptions(options...)
	name := opts.JobName
	if name == "" {
		name = p.Name
	}
	jobOpts := []job.Option{job.WithNode(opts.Node)}
	if opts.Allocator != nil {
		jobOpts = append(jobOpts, job.WithAllocator(opts.Allocator))
	}
	for cbName, cb := range opts.Callbacks {
		jobOpts = append(jobOpts, job.WithCallback(cbName, cb))
	}

	g := &Graph{
		plan:   p,
		job:    job.New(name, p, jobOpts...),
		ch:     opts.Channel,
		opts:   opts,
		actors: maputil.NewConcurrentMap[int64, *actor.Actor](16),
	}
	if g.ch == nil {
		g.ch = channel.New()
	}
	if opts.Transport != nil {
		g.ch.SetTransport(opts.Transport)
	}

	for _, id := range p.IDs() {
		desc := p.Lookup(id)
		if !g.job.IsLocal(desc) {
			g.ch.AddRemote(id, desc.Node)
			continue
		}
		a, err := actor.New(desc, g.job, g.ch,
			actor.WithDispatcher(opts.Dispatcher),
			actor.WithRegistry(opts.Registry),
			actor.WithOnDone(g.onDone),
		)
		if err != nil {
			g.discard()
			return nil, err
		}
		g.actors.Set(id, a)
		g.local = append(g.local, id)
	}
	if len(g.local) == 0 {
		return nil, errs.Config(0, "", "no actor of plan %s runs on node %q", p.Name, opts.Node)
	}
	g.waiter = newDoneWaiter(len(g.local))
	glog.Info("graph built", zap.String("job", name), zap.Int("local", len(g.local)), zap.Int("total", len(p.Actors)))
	return g, nil
}

func (g *Graph) discard() {
	for _, id := range g.local {
		if a, ok := g.actors.Get(id); ok {
			a.Discard()
		}
	}
}

func (g *Graph) Plan() *plan.Plan          { return g.plan }
func (g *Graph) Job() *job.Context         { return g.job }
func (g *Graph) Channel() *channel.Channel { return g.ch }
func (g *Graph) LocalIDs() []int64         { return g.local }

// Actor 取本地 actor
func (g *Graph) Actor(id int64) (*actor.Actor, bool) {
	return g.actors.Get(id)
}

// Start 给每个本地 actor 发送 Start，只能调用一次
func (g *Graph) Start() error {
	if !g.started.CompareAndSwap(false, true) {
		return errs.ErrGraphStarted
	}
	for _, id := range g.local {
		if err := g.post(id, message.CmdStart); err != nil {
			return err
		}
	}
	glog.Debug("graph started", zap.String("job", g.job.Name()))
	return nil
}

// Stop 向所有本地 actor 广播 Stop，可重复调用
//
// 每个 actor 执行完当前一步后排空并终止；图已经自然结束时没有任何效果。
func (g *Graph) Stop() {
	if !g.stopped.CompareAndSwap(false, true) {
		return
	}
	if g.waiter.Finished() {
		return
	}
	if g.firstErr() == nil {
		g.interrupted.Store(true)
	}
	for _, id := range g.local {
		_ = g.post(id, message.CmdStop)
	}
	glog.Info("graph stopping", zap.String("job", g.job.Name()))
}

func (g *Graph) post(id int64, cmd message.Command) error {
	a, ok := g.actors.Get(id)
	if !ok {
		return errs.Wrapf(errs.ErrActorNotFound, "actor %d", id)
	}
	return a.Post(message.NewCommand(id, cmd))
}

// Wait 等待全部本地 actor 终止，返回第一个错误
//
// 外部调用 Stop 打断的运行返回 ErrGraphStopped；Stop 和自然结束赛跑时，
// 只要没有 actor 被 Stop 提前打断，仍然按自然结束返回 nil。
func (g *Graph) Wait(ctx context.Context) error {
	if err := g.waiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.firstErr(); err != nil {
		return err
	}
	if g.interrupted.Load() && g.cutShort() {
		return errs.ErrGraphStopped
	}
	return nil
}

// cutShort 是否有本地 actor 在排空之前收到了 Stop
func (g *Graph) cutShort() bool {
	for _, id := range g.local {
		if a, ok := g.actors.Get(id); ok && a.Snapshot().Interrupted {
			return true
		}
	}
	return false
}

// Run 启动并等待结束，ctx 取消时停止整张图
func (g *Graph) Run(ctx context.Context) error {
	if err := g.Start(); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	grs.Go(ctx, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			g.Stop()
		case <-done:
		}
	})
	return g.Wait(context.Background())
}

// Done 全部本地 actor 结束时关闭
func (g *Graph) Done() <-chan struct{} {
	return g.waiter.ch
}

func (g *Graph) onDone(id int64, err error) {
	if err != nil {
		g.mu.Lock()
		if g.err == nil {
			g.err = err
		}
		g.mu.Unlock()
		glog.Error("actor failed, stopping graph", glog.Actor(id), zap.Error(err))
		go g.Stop()
	}
	g.waiter.Done()
}

func (g *Graph) firstErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Snapshot 全部本地 actor 的快照，按 id 升序
func (g *Graph) Snapshot() []actor.Snapshot {
	snaps := make([]actor.Snapshot, 0, len(g.local))
	for _, id := range g.local {
		if a, ok := g.actors.Get(id); ok {
			snaps = append(snaps, convertor.DeepClone(a.Snapshot()))
		}
	}
	return snaps
}

// Close 关闭通道和传输层，应在 Wait 返回之后调用
func (g *Graph) Close() error {
	return g.ch.Close()
}
