package kernel

import (
	"math"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
)

// Float gelu 一类只对浮点有意义的 kernel
type Float interface {
	~float32 | ~float64
}

// slots 声明 kernel 需要的输入输出，Init 时检查
type slots struct {
	inputs []string // 必须存在的输入槽名
	minIn  int
	minOut int
}

func (s slots) Init(desc *plan.ActorDesc, _ *job.Context) error {
	if len(desc.Inputs) < s.minIn {
		return errs.Config(desc.ID, "", "kernel %s needs %d inputs, got %d", desc.Kernel.OpType, s.minIn, len(desc.Inputs))
	}
	if len(desc.Outputs) < s.minOut {
		return errs.Config(desc.ID, "", "kernel %s needs %d outputs, got %d", desc.Kernel.OpType, s.minOut, len(desc.Outputs))
	}
	for _, name := range s.inputs {
		if desc.Input(name) == nil {
			return errs.Config(desc.ID, name, "kernel %s needs input slot %q", desc.Kernel.OpType, name)
		}
	}
	return nil
}

// unary out[i] = fn(in[i])，输入输出按 plan 顺序取第一个
type unary[T register.Elem] struct {
	slots
	fn func(T) T
}

func newUnary[T register.Elem](fn func(T) T) *unary[T] {
	return &unary[T]{slots: slots{minIn: 1, minOut: 1}, fn: fn}
}

func (k *unary[T]) Compute(ctx *Context) error {
	in := register.View[T](ctx.InputAt(0))
	out := register.View[T](ctx.OutputAt(0))
	n := min(len(in), len(out))
	for i := 0; i < n; i++ {
		out[i] = k.fn(in[i])
	}
	return nil
}

// grad dx[i] = fn(x[i], dy[i])
type grad[T register.Elem] struct {
	slots
	fn func(x, dy T) T
}

func newGrad[T register.Elem](fn func(x, dy T) T) *grad[T] {
	return &grad[T]{slots: slots{inputs: []string{"x", "dy"}, minIn: 2, minOut: 1}, fn: fn}
}

func (k *grad[T]) Compute(ctx *Context) error {
	x := register.View[T](ctx.Input("x"))
	dy := register.View[T](ctx.Input("dy"))
	dx := register.View[T](ctx.OutputAt(0))
	n := min(len(x), len(dy), len(dx))
	for i := 0; i < n; i++ {
		dx[i] = k.fn(x[i], dy[i])
	}
	return nil
}

// add 所有非空输入逐元素相加
type add[T register.Elem] struct {
	slots
}

func (k *add[T]) Compute(ctx *Context) error {
	out := register.View[T](ctx.OutputAt(0))
	clear(out)
	for _, name := range ctx.InputNames() {
		in := register.View[T](ctx.Input(name))
		n := min(len(in), len(out))
		for i := 0; i < n; i++ {
			out[i] += in[i]
		}
	}
	return nil
}

// ComputeOnEmpty 环路里反馈槽结束后，剩下的输入仍然要累加
func (k *add[T]) ComputeOnEmpty() bool { return true }

// copyKernel 第一个输入的字节原样拷贝到每个输出
type copyKernel struct {
	slots
}

func (k *copyKernel) Compute(ctx *Context) error {
	in := ctx.InputAt(0)
	if in == nil {
		return nil
	}
	for _, name := range ctx.OutputNames() {
		if out := ctx.Output(name); out != nil {
			copy(out.Data, in.Data)
		}
	}
	return nil
}

var invSqrt2 = math.Sqrt(0.5)
var geluCoef = math.Sqrt(2.0 / math.Pi)

func gelu[T Float](x T) T {
	v := float64(x)
	return T(0.5 * v * (1.0 + math.Erf(invSqrt2*v)))
}

func geluGrad[T Float](x, dy T) T {
	v := float64(x)
	return T(0.5 * (1.0 + math.Erf(invSqrt2*v) + v*geluCoef*math.Exp(-0.5*v*v)) * float64(dy))
}

// bounds clip 系列的上下界，浮点类型读 floating_*，整数类型读 integral_*
type bounds[T register.Elem] struct {
	lo, hi       T
	hasLo, hasHi bool
}

func loadBounds[T register.Elem](desc *plan.ActorDesc, dtype register.DataType, wantLo, wantHi bool) (bounds[T], error) {
	var b bounds[T]
	attrs := desc.Kernel.Attrs
	floating := dtype == register.DTypeFloat32 || dtype == register.DTypeFloat64
	get := func(suffix string) (T, error) {
		if floating {
			name := "floating_" + suffix
			if !attrs.Has(name) {
				return 0, errs.Config(desc.ID, "", "clip needs attr %s", name)
			}
			v, err := attrs.Float(name, 0)
			return T(v), err
		}
		name := "integral_" + suffix
		if !attrs.Has(name) {
			return 0, errs.Config(desc.ID, "", "clip needs attr %s", name)
		}
		v, err := attrs.Int(name, 0)
		return T(v), err
	}
	var err error
	if wantLo {
		if b.lo, err = get("min"); err != nil {
			return b, err
		}
		b.hasLo = true
	}
	if wantHi {
		if b.hi, err = get("max"); err != nil {
			return b, err
		}
		b.hasHi = true
	}
	if b.hasLo && b.hasHi && b.lo > b.hi {
		return b, errs.Config(desc.ID, "", "clip min %v greater than max %v", b.lo, b.hi)
	}
	return b, nil
}

func (b bounds[T]) clip(x T) T {
	if b.hasLo && x < b.lo {
		return b.lo
	}
	if b.hasHi && x > b.hi {
		return b.hi
	}
	return x
}

// grad 在区间内透传梯度，区间外为 0
func (b bounds[T]) grad(x, dy T) T {
	if (b.hasLo && x < b.lo) || (b.hasHi && x > b.hi) {
		return 0
	}
	return dy
}
