package actor

import (
	"errors"
	"fmt"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/kernel"
	"github.com/dzm2020/regflow/internal/message"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/register"
	"go.uber.org/zap"
)

// advance 电平触发：只要就绪就一直执行，直到等输入、等输出槽或进入排空
func (a *Actor) advance() error {
	if a.state == StateInitializing || a.state == StateTerminated {
		return nil
	}
	for !a.state.Done() {
		if a.shouldDrain() {
			if err := a.drain(); err != nil {
				return err
			}
			break
		}
		wait, ready := a.readiness()
		if !ready {
			return a.transit(wait)
		}
		if err := a.transit(StateReady); err != nil {
			return err
		}
		if err := a.transit(StateExecuting); err != nil {
			return err
		}
		if err := a.act(); err != nil {
			return err
		}
	}
	if a.canTerminate() {
		return a.terminate()
	}
	return nil
}

// shouldDrain 收到 Stop、源已结束、必需输入耗尽，或 allow_empty 时全部输入耗尽
func (a *Actor) shouldDrain() bool {
	if a.stopped || a.finished {
		return true
	}
	if len(a.inputs) == 0 {
		return false
	}
	all := true
	for _, s := range a.inputs {
		if s.exhausted() {
			if !a.desc.AllowEmpty {
				return true
			}
		} else {
			all = false
		}
	}
	return all
}

// readiness 返回不就绪时应处的等待状态
func (a *Actor) readiness() (State, bool) {
	if len(a.inputs) > 0 {
		withData := false
		for _, s := range a.inputs {
			if len(s.queue) > 0 {
				withData = true
				continue
			}
			if !(a.desc.AllowEmpty && s.eos) {
				return StateWaitingForInput, false
			}
		}
		if !withData {
			return StateWaitingForInput, false
		}
	}
	for _, slot := range a.pool.Slots() {
		if !a.pool.CanAcquire(slot) {
			return StateWaitingForOutputSlot, false
		}
	}
	return StateReady, true
}

// act 执行一步：绑定输入、申请输出、计算、发布、归还输入
func (a *Actor) act() error {
	bound := make([]*message.Message, len(a.inputs))
	var lead *message.Message
	for i, s := range a.inputs {
		if len(s.queue) == 0 {
			continue
		}
		msg := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if msg.Reg.State() != register.StateInFlight {
			a.giveBack(msg)
			return errs.Protocol(a.id, s.name, errs.ErrNotInFlight, "bind %s", msg.Reg)
		}
		bound[i] = msg
		s.consumed++
		// 元数据跟随 piece 最大的输入：环路里反馈边带的是上一步或预置寄存器的 piece
		if lead == nil || msg.PieceID() > lead.PieceID() {
			lead = msg
		}
	}

	slots := a.pool.Slots()
	outputs := make([]*register.Register, 0, len(slots))
	for _, slot := range slots {
		reg, ok := a.pool.Acquire(slot)
		if !ok {
			a.returnBound(bound)
			return errs.Protocol(a.id, slot, errs.ErrIllegalTransition, "acquire after readiness check")
		}
		outputs = append(outputs, reg)
	}

	meta := register.Meta{PieceID: a.actID}
	if lead != nil {
		meta = lead.Meta
	}
	meta.ActID = a.actID

	a.kctx.Reset(a.actID, meta.PieceID)
	empty := false
	for i, s := range a.inputs {
		var blob *register.Blob
		if bound[i] != nil {
			blob = bound[i].Reg.Blob()
		}
		if blob.IsEmpty() {
			empty = true
		}
		a.kctx.BindInput(s.name, blob)
	}
	for _, reg := range outputs {
		a.kctx.BindOutput(reg.Slot(), reg.Blob())
	}

	if empty && !a.computeOnEmpty {
		for _, reg := range outputs {
			reg.Blob().ClearValidNum()
		}
	} else if err := a.compute(); err != nil {
		for _, reg := range outputs {
			_ = a.pool.Abandon(reg)
		}
		a.returnBound(bound)
		if errors.Is(err, kernel.ErrEndOfStream) {
			a.finished = true
			glog.Debug("kernel end of stream", glog.Actor(a.id), zap.Int64("acts", a.actID))
			return nil
		}
		return errs.Kernel(a.id, err)
	} else if lead != nil {
		for _, reg := range outputs {
			if reg.Blob().ValidNum == nil {
				reg.Blob().CopyValidNumFrom(lead.Reg.Blob())
			}
		}
	}

	for _, reg := range outputs {
		if err := a.publish(reg, meta); err != nil {
			return err
		}
	}
	if err := a.returnBound(bound); err != nil {
		return err
	}
	a.actID++
	if a.desc.MaxPieces > 0 && a.actID >= a.desc.MaxPieces {
		a.finished = true
	}
	return nil
}

func (a *Actor) compute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel %s panic: %v", a.desc.Kernel.OpType, r)
		}
	}()
	return a.kernel.Compute(a.kctx)
}

func (a *Actor) returnBound(bound []*message.Message) error {
	for _, msg := range bound {
		if msg == nil {
			continue
		}
		if err := a.send(message.NewReturned(a.id, msg.Src, msg.RegisterID)); err != nil {
			return err
		}
	}
	return nil
}
