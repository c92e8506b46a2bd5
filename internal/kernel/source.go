package kernel

import (
	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
)

// source 没有输入，每一步把 act 序号写进每个输出的全部元素
//
// attrs: elem_cnt 只写前 n 个元素并把第 0 维有效数设为 n；pieces 产出多少片后结束。
type source[T register.Elem] struct {
	slots
	elemCnt int64
	pieces  int64
}

func newSource[T register.Elem](desc *plan.ActorDesc) (IKernel, error) {
	k := &source[T]{slots: slots{minOut: 1}}
	var err error
	if k.elemCnt, err = desc.Kernel.Attrs.Int("elem_cnt", 0); err != nil {
		return nil, err
	}
	if k.pieces, err = desc.Kernel.Attrs.Int("pieces", 0); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *source[T]) Compute(ctx *Context) error {
	if k.pieces > 0 && ctx.ActID() >= k.pieces {
		return ErrEndOfStream
	}
	for _, name := range ctx.OutputNames() {
		out := ctx.Output(name)
		view := register.View[T](out)
		n := len(view)
		if k.elemCnt > 0 && int(k.elemCnt) < n {
			n = int(k.elemCnt)
			out.SetValidNum(0, k.elemCnt)
		}
		for i := 0; i < n; i++ {
			view[i] = T(ctx.ActID())
		}
	}
	return nil
}

// sink 把每个输入交给宿主回调，attrs: callback 回调名，为空时只丢弃
type sink struct {
	name string
	cb   job.Callback
}

func newSink(desc *plan.ActorDesc) (IKernel, error) {
	return &sink{name: desc.Kernel.Attrs.String("callback", "")}, nil
}

func (k *sink) Init(desc *plan.ActorDesc, jc *job.Context) error {
	if len(desc.Inputs) == 0 {
		return errs.Config(desc.ID, "", "sink needs at least one input")
	}
	if k.name == "" {
		return nil
	}
	if jc == nil {
		return errs.Config(desc.ID, "", "sink callback %q without job context", k.name)
	}
	cb, ok := jc.Callback(k.name)
	if !ok {
		return errs.Config(desc.ID, "", "sink callback %q not registered", k.name)
	}
	k.cb = cb
	return nil
}

func (k *sink) Compute(ctx *Context) error {
	if k.cb == nil {
		return nil
	}
	for _, name := range ctx.InputNames() {
		if err := k.cb(ctx.ActorID(), ctx.PieceID(), ctx.Input(name)); err != nil {
			return err
		}
	}
	return nil
}

// ComputeOnEmpty 空 piece 也要让回调看到
func (k *sink) ComputeOnEmpty() bool { return true }
