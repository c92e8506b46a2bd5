// Package actor 数据流执行单元：一个 actor 绑定一个 kernel 和一组输出寄存器池，
// 通过 RegisterAvailable / RegisterReturned / EndOfStream 消息和上下游协作。
package actor

import (
	"sync/atomic"

	"github.com/dzm2020/regflow/internal/channel"
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/kernel"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/register"
	"go.uber.org/zap"
)

type slotKey struct {
	producer int64
	slot     string
}

// inputSlot 一个输入槽：等待消费的 RegisterAvailable 队列和结束标记
type inputSlot struct {
	name         string
	producer     int64
	producerSlot string
	queue        []*message.Message
	eos          bool
	lastPiece    int64
	consumed     int64
}

// exhausted 生产者已结束且没有剩余数据
func (s *inputSlot) exhausted() bool {
	return s.eos && len(s.queue) == 0
}

// Actor 除构造和 Snapshot 外，所有字段只由 mailbox 的工作协程访问
type Actor struct {
	id      int64
	desc    *plan.ActorDesc
	job     *job.Context
	ch      *channel.Channel
	opts    *Options
	mailbox *Mailbox

	kernel         kernel.IKernel
	kctx           *kernel.Context
	computeOnEmpty bool
	pool           *register.Pool

	inputs     []*inputSlot
	byProducer map[slotKey]*inputSlot

	state     State
	actID     int64
	processed int64
	started   bool
	stopped   bool
	finished  bool // 源结束：kernel 返回 ErrEndOfStream 或达到 max_pieces
	eosSent   bool
	cut       bool // Stop 到达时还没开始排空
	tombstone bool
	aborted   bool
	err       error
	done      atomic.Bool

	snap atomic.Pointer[Snapshot]
}

// New 按计划描述构造 actor：创建 kernel、分配输出寄存器池、在通道上挂载收件箱
//
// 失败时返回配置错误，已经分配的 buffer 会被释放。
func New(desc *plan.ActorDesc, jc *job.Context, ch *channel.Channel, options ...Option) (*Actor, error) {
	if desc.ID <= message.DriverID {
		return nil, errs.Config(desc.ID, "", "actor id must be positive")
	}
	opts := loadOptions(options...)
	a := &Actor{
		id:         desc.ID,
		desc:       desc,
		job:        jc,
		ch:         ch,
		opts:       opts,
		byProducer: make(map[slotKey]*inputSlot, len(desc.Inputs)),
		state:      StateInitializing,
	}

	k, err := opts.Registry.Create(desc, kernelDType(desc, jc))
	if err != nil {
		return nil, err
	}
	if initer, ok := k.(kernel.IInitializer); ok {
		if err = initer.Init(desc, jc); err != nil {
			if errs.CategoryOf(err) == 0 {
				err = errs.Config(desc.ID, "", "init kernel %s: %v", desc.Kernel.OpType, err)
			}
			return nil, err
		}
	}
	a.kernel = k
	a.kctx = kernel.NewContext(desc, jc)
	a.computeOnEmpty = kernel.ComputeOnEmpty(k)

	for _, in := range desc.Inputs {
		s := &inputSlot{name: in.Name, producer: in.Producer, producerSlot: in.ProducerSlot, lastPiece: -1 << 62}
		a.inputs = append(a.inputs, s)
		a.byProducer[slotKey{in.Producer, in.ProducerSlot}] = s
	}

	slots, err := slotConfigs(desc)
	if err != nil {
		return nil, err
	}
	var alloc register.IAllocator
	nextID := func() int64 { return 0 }
	if jc != nil {
		alloc = jc.Allocator()
		nextID = jc.NextRegisterID
	}
	if a.pool, err = register.NewPool(desc.ID, slots, alloc, nextID); err != nil {
		return nil, err
	}

	a.mailbox = newMailbox(a.id, opts.Dispatcher, a.receive)
	a.publishSnapshot()
	if ch != nil {
		ch.Register(a.mailbox.Inbox())
	}
	return a, nil
}

func slotConfigs(desc *plan.ActorDesc) ([]register.SlotConfig, error) {
	slots := make([]register.SlotConfig, 0, len(desc.Outputs))
	for _, out := range desc.Outputs {
		dtype, err := register.ParseDataType(out.DType)
		if err != nil {
			return nil, errs.Config(desc.ID, out.Name, "%v", err)
		}
		consumers := make([]int64, 0, len(out.Consumers))
		for _, c := range out.Consumers {
			consumers = append(consumers, c.Actor)
		}
		slots = append(slots, register.SlotConfig{
			Name:      out.Name,
			Depth:     out.Depth,
			ByteSize:  out.ByteSize,
			Shape:     out.Shape,
			DType:     dtype,
			Device:    desc.Device,
			Consumers: consumers,
		})
	}
	return slots, nil
}

// kernelDType 选择 kernel 实现的数据类型：第一个输出，没有输出时取第一个输入的生产者
func kernelDType(desc *plan.ActorDesc, jc *job.Context) register.DataType {
	name := ""
	if len(desc.Outputs) > 0 {
		name = desc.Outputs[0].DType
	} else if len(desc.Inputs) > 0 && jc != nil && jc.Plan() != nil {
		if p := jc.Plan().Lookup(desc.Inputs[0].Producer); p != nil {
			if out := p.Output(desc.Inputs[0].ProducerSlot); out != nil {
				name = out.DType
			}
		}
	}
	dtype, err := register.ParseDataType(name)
	if err != nil {
		return register.DTypeInvalid
	}
	return dtype
}

func (a *Actor) ID() int64             { return a.id }
func (a *Actor) Desc() *plan.ActorDesc { return a.desc }
func (a *Actor) Mailbox() *Mailbox     { return a.mailbox }
func (a *Actor) IsDone() bool          { return a.done.Load() }

// Post 直接投递消息，绕过通道，测试和驱动使用
func (a *Actor) Post(msg *message.Message) error {
	return a.mailbox.Inbox().Push(msg)
}

// receive mailbox 的处理函数，每次处理一批消息后重新评估就绪
func (a *Actor) receive(batch []*message.Message) {
	for i, msg := range batch {
		if a.tombstone {
			a.bury(batch[i:])
			break
		}
		a.processed++
		if err := a.handle(msg); err != nil {
			a.abort(err)
		}
	}
	if !a.tombstone {
		if err := a.advance(); err != nil {
			a.abort(err)
		}
	}
	a.publishSnapshot()
}

func (a *Actor) handle(msg *message.Message) error {
	switch msg.Kind {
	case message.KindRegisterAvailable:
		return a.onAvailable(msg)
	case message.KindRegisterReturned:
		return a.onReturned(msg)
	case message.KindEndOfStream:
		return a.onEndOfStream(msg)
	case message.KindCommand:
		return a.onCommand(msg)
	default:
		return errs.Protocol(a.id, "", errs.ErrIllegalTransition, "unknown message %s", msg)
	}
}

func (a *Actor) onAvailable(msg *message.Message) error {
	s, ok := a.byProducer[slotKey{msg.Src, msg.Slot}]
	if !ok {
		return errs.Protocol(a.id, msg.Slot, errs.ErrUnboundSlot, "%s", msg)
	}
	if msg.Reg == nil {
		return errs.Protocol(a.id, s.name, errs.ErrMissingRegister, "%s", msg)
	}
	if msg.Reg.State() != register.StateInFlight {
		return errs.Protocol(a.id, s.name, errs.ErrNotInFlight, "%s", msg.Reg)
	}
	if s.eos {
		return errs.Protocol(a.id, s.name, errs.ErrDataAfterEndOfStream, "%s", msg)
	}
	if msg.PieceID() < s.lastPiece {
		return errs.Protocol(a.id, s.name, errs.ErrPieceRegressed, "piece %d after %d", msg.PieceID(), s.lastPiece)
	}
	s.lastPiece = msg.PieceID()
	if a.state.Done() {
		// 已经在排空：读权限立即交还
		return a.send(message.NewReturned(a.id, msg.Src, msg.RegisterID))
	}
	s.queue = append(s.queue, msg)
	return nil
}

func (a *Actor) onReturned(msg *message.Message) error {
	if _, err := a.pool.Return(msg.RegisterID, msg.Src); err != nil {
		slot := ""
		if reg := a.pool.Lookup(msg.RegisterID); reg != nil {
			slot = reg.Slot()
		}
		return errs.Protocol(a.id, slot, err, "return from %d", msg.Src)
	}
	return nil
}

func (a *Actor) onEndOfStream(msg *message.Message) error {
	s, ok := a.byProducer[slotKey{msg.Src, msg.Slot}]
	if !ok {
		return errs.Protocol(a.id, msg.Slot, errs.ErrUnboundSlot, "%s", msg)
	}
	if s.eos {
		return errs.Protocol(a.id, s.name, errs.ErrDuplicateEndOfStream, "%s", msg)
	}
	s.eos = true
	glog.Debug("input end of stream", glog.Actor(a.id), glog.Slot(s.name), glog.Peer(msg.Src))
	return nil
}

func (a *Actor) onCommand(msg *message.Message) error {
	switch msg.Command {
	case message.CmdStart:
		if a.started {
			glog.Warn("duplicate start ignored", glog.Actor(a.id))
			return nil
		}
		a.started = true
		if a.state != StateInitializing {
			return nil
		}
		if err := a.transit(StateWaitingForInput); err != nil {
			return err
		}
		return a.seed()
	case message.CmdStop:
		if a.stopped {
			return nil
		}
		a.stopped = true
		a.cut = !a.state.Done()
		glog.Debug("stop received", glog.Actor(a.id), zap.Stringer("state", a.state))
		if a.state == StateInitializing {
			return a.drain()
		}
		return nil
	default:
		return errs.Protocol(a.id, "", errs.ErrIllegalTransition, "unknown command %s", msg.Command)
	}
}

// seed 启动时给反馈边预先发布空寄存器
func (a *Actor) seed() error {
	for _, out := range a.desc.Outputs {
		for i := 0; i < out.Seed; i++ {
			reg, ok := a.pool.Acquire(out.Name)
			if !ok {
				return errs.Config(a.id, out.Name, "seed %d exceeds depth %d", out.Seed, out.Depth)
			}
			reg.Blob().Reset()
			if err := a.publish(reg, register.Meta{PieceID: -1, ActID: -1}); err != nil {
				return err
			}
		}
		if out.Seed > 0 {
			glog.Debug("output seeded", glog.Actor(a.id), glog.Slot(out.Name), zap.Int("seed", out.Seed))
		}
	}
	return nil
}

// publish 发布寄存器并通知所有消费者
func (a *Actor) publish(reg *register.Register, meta register.Meta) error {
	consumers, err := a.pool.Publish(reg, meta)
	if err != nil {
		return errs.Protocol(a.id, reg.Slot(), err, "publish")
	}
	for _, c := range consumers {
		if err = a.send(message.NewAvailable(a.id, c, reg)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) send(msg *message.Message) error {
	if a.ch == nil {
		return errs.Wrapf(errs.ErrChannelClosed, "actor %d has no channel", a.id)
	}
	if err := a.ch.Send(msg); err != nil {
		return errs.Protocol(a.id, msg.Slot, err, "send")
	}
	return nil
}

func (a *Actor) transit(to State) error {
	from := a.state
	if from == to {
		return nil
	}
	if !from.CanTransit(to) {
		return errs.Protocol(a.id, "", errs.ErrIllegalTransition, "%s -> %s", from, to)
	}
	a.state = to
	return nil
}

// drain 进入排空：归还排队的输入，每个输出槽发一次 EndOfStream
func (a *Actor) drain() error {
	if err := a.transit(StateDraining); err != nil {
		return err
	}
	if err := a.returnQueued(); err != nil {
		return err
	}
	if err := a.endOfStream(); err != nil {
		return err
	}
	glog.Debug("actor draining", glog.Actor(a.id), zap.Int64("acts", a.actID), zap.Bool("stopped", a.stopped))
	return nil
}

// endOfStream 每个消费者只发一次
func (a *Actor) endOfStream() error {
	if a.eosSent {
		return nil
	}
	a.eosSent = true
	for _, out := range a.desc.Outputs {
		for _, c := range out.Consumers {
			if err := a.send(message.NewEndOfStream(a.id, c.Actor, out.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Actor) returnQueued() error {
	for _, s := range a.inputs {
		for _, msg := range s.queue {
			if err := a.send(message.NewReturned(a.id, msg.Src, msg.RegisterID)); err != nil {
				return err
			}
		}
		clear(s.queue)
		s.queue = s.queue[:0]
	}
	return nil
}

// canTerminate 排空中、没有寄存器在外、所有生产者已结束或收到了 Stop
func (a *Actor) canTerminate() bool {
	if a.state != StateDraining || a.pool.InFlight() > 0 {
		return false
	}
	if a.stopped {
		return true
	}
	for _, s := range a.inputs {
		if !s.eos {
			return false
		}
	}
	return true
}

func (a *Actor) terminate() error {
	if err := a.transit(StateTerminated); err != nil {
		return err
	}
	if !a.pool.Release() {
		return errs.Protocol(a.id, "", errs.ErrNotInFlight, "release with registers in flight")
	}
	a.tombstone = true
	glog.Info("actor terminated", glog.Actor(a.id), zap.String("name", a.desc.Name), zap.Int64("acts", a.actID))
	a.finish(nil)
	return nil
}

// abort 出错中止：归还手上的输入，通知下游结束，在外的寄存器收齐后释放 buffer
func (a *Actor) abort(err error) {
	if a.aborted {
		return
	}
	a.aborted = true
	a.err = err
	a.tombstone = true
	for _, s := range a.inputs {
		for _, msg := range s.queue {
			a.giveBack(msg)
		}
		s.queue = nil
	}
	if a.state != StateTerminated {
		a.state = StateDraining
	}
	if e := a.endOfStream(); e != nil {
		glog.Warn("end of stream on abort failed", glog.Actor(a.id), zap.Error(e))
	}
	glog.Error("actor aborted", glog.Actor(a.id), zap.String("name", a.desc.Name), zap.Error(err))
	a.reap()
	a.finish(err)
}

// reap 中止后寄存器全部归还时释放 buffer 并进入 Terminated
func (a *Actor) reap() {
	if !a.aborted || a.state != StateDraining || a.pool.InFlight() > 0 {
		return
	}
	if a.pool.Release() {
		a.state = StateTerminated
		glog.Debug("aborted actor released", glog.Actor(a.id))
	}
}

func (a *Actor) finish(err error) {
	if !a.done.CompareAndSwap(false, true) {
		return
	}
	// 等待者被唤醒时看到的必须是最终快照
	a.publishSnapshot()
	if a.opts.OnDone != nil {
		a.opts.OnDone(a.id, err)
	}
}

// bury 终止后的收件箱：迟到的寄存器原样归还，中止后继续回收自己的寄存器，其余丢弃
func (a *Actor) bury(batch []*message.Message) {
	for _, msg := range batch {
		switch msg.Kind {
		case message.KindRegisterAvailable:
			a.giveBack(msg)
		case message.KindRegisterReturned:
			if !a.aborted || a.pool.Released() {
				continue
			}
			if _, err := a.pool.Return(msg.RegisterID, msg.Src); err != nil {
				glog.Debug("late return ignored", glog.Actor(a.id), glog.Register(msg.RegisterID), zap.Error(err))
			}
		}
	}
	a.reap()
}

// giveBack 尽力归还，失败只记日志
func (a *Actor) giveBack(msg *message.Message) {
	if err := a.send(message.NewReturned(a.id, msg.Src, msg.RegisterID)); err != nil {
		glog.Debug("give back register failed", glog.Actor(a.id), glog.Register(msg.RegisterID), zap.Error(err))
	}
}

// Discard 启动前放弃 actor：摘掉收件箱并释放 buffer，图构造失败时使用
func (a *Actor) Discard() {
	if a.ch != nil {
		a.ch.Unregister(a.id)
	}
	a.mailbox.Inbox().Close()
	a.pool.Release()
}
