package plan

import (
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/pkg/register"
)

// Validate 检查计划是否完整可执行，任何悬空的 id 或不对称的绑定都是配置错误
func (p *Plan) Validate() error {
	if p == nil || len(p.Actors) == 0 {
		return errs.Config(0, "", "plan has no actors")
	}
	byID := make(map[int64]*ActorDesc, len(p.Actors))
	for _, a := range p.Actors {
		if a == nil {
			return errs.Config(0, "", "nil actor descriptor")
		}
		if a.ID <= 0 {
			return errs.Config(a.ID, "", "actor id must be positive")
		}
		if _, ok := byID[a.ID]; ok {
			return errs.Config(a.ID, "", "duplicate actor id")
		}
		byID[a.ID] = a
	}
	for _, id := range p.IDs() {
		if err := validateActor(byID[id], byID); err != nil {
			return err
		}
	}
	return nil
}

func validateActor(a *ActorDesc, byID map[int64]*ActorDesc) error {
	if a.Kernel.OpType == "" {
		return errs.Config(a.ID, "", "kernel op type is empty")
	}
	if a.MaxPieces < 0 {
		return errs.Config(a.ID, "", "max_pieces must be >= 0")
	}
	if len(a.Inputs) == 0 && len(a.Outputs) == 0 {
		return errs.Config(a.ID, "", "actor has neither inputs nor outputs")
	}

	seenIn := make(map[string]bool, len(a.Inputs))
	seenProducer := make(map[ConsumerRef]bool, len(a.Inputs))
	for _, in := range a.Inputs {
		if in.Name == "" {
			return errs.Config(a.ID, "", "input slot without name")
		}
		if seenIn[in.Name] {
			return errs.Config(a.ID, in.Name, "duplicate input slot")
		}
		seenIn[in.Name] = true
		key := ConsumerRef{Actor: in.Producer, Slot: in.ProducerSlot}
		if seenProducer[key] {
			return errs.Config(a.ID, in.Name, "producer %d/%s bound twice", in.Producer, in.ProducerSlot)
		}
		seenProducer[key] = true

		producer, ok := byID[in.Producer]
		if !ok {
			return errs.Config(a.ID, in.Name, "missing binding: producer %d not in plan", in.Producer)
		}
		out := producer.Output(in.ProducerSlot)
		if out == nil {
			return errs.Config(a.ID, in.Name, "missing binding: producer %d has no output %q", in.Producer, in.ProducerSlot)
		}
		if !hasConsumer(out, a.ID, in.Name) {
			return errs.Config(a.ID, in.Name, "producer %d/%s does not list this consumer", in.Producer, in.ProducerSlot)
		}
	}

	seenOut := make(map[string]bool, len(a.Outputs))
	for _, out := range a.Outputs {
		if out.Name == "" {
			return errs.Config(a.ID, "", "output slot without name")
		}
		if seenOut[out.Name] {
			return errs.Config(a.ID, out.Name, "duplicate output slot")
		}
		seenOut[out.Name] = true
		if out.Depth < 1 {
			return errs.Config(a.ID, out.Name, "pool too small: depth %d can never satisfy readiness", out.Depth)
		}
		if out.Seed < 0 || out.Seed > out.Depth {
			return errs.Config(a.ID, out.Name, "seed %d must be within [0, depth %d]", out.Seed, out.Depth)
		}
		if out.Seed > 0 && len(out.Consumers) == 0 {
			return errs.Config(a.ID, out.Name, "seed without consumers")
		}
		if _, err := register.ParseDataType(out.DType); err != nil {
			return errs.Config(a.ID, out.Name, "%v", err)
		}
		seenConsumer := make(map[int64]bool, len(out.Consumers))
		for _, c := range out.Consumers {
			if seenConsumer[c.Actor] {
				return errs.Config(a.ID, out.Name, "consumer %d listed twice", c.Actor)
			}
			seenConsumer[c.Actor] = true
			consumer, ok := byID[c.Actor]
			if !ok {
				return errs.Config(a.ID, out.Name, "missing binding: consumer %d not in plan", c.Actor)
			}
			in := consumer.Input(c.Slot)
			if in == nil || in.Producer != a.ID || in.ProducerSlot != out.Name {
				return errs.Config(a.ID, out.Name, "consumer %d/%s is not bound back to this slot", c.Actor, c.Slot)
			}
		}
	}
	return nil
}

func hasConsumer(out *OutputDesc, actor int64, slot string) bool {
	for _, c := range out.Consumers {
		if c.Actor == actor && c.Slot == slot {
			return true
		}
	}
	return false
}
