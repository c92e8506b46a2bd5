package kernel

import (
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
)

func init() {
	RegisterBuiltins(defaultRegistry)
}

// RegisterBuiltins 把内置 kernel 注册到 r
func RegisterBuiltins(r *Registry) {
	must(r.Register("copy", func(*plan.ActorDesc) (IKernel, error) {
		return &copyKernel{slots: slots{minIn: 1, minOut: 1}}, nil
	}))
	must(r.Register("sink", newSink))

	registerElem[float32](r, register.DTypeFloat32)
	registerElem[float64](r, register.DTypeFloat64)
	registerElem[int32](r, register.DTypeInt32)
	registerElem[int64](r, register.DTypeInt64)

	registerFloat[float32](r, register.DTypeFloat32)
	registerFloat[float64](r, register.DTypeFloat64)
}

// registerElem 对所有数值类型都有意义的 kernel
func registerElem[T register.Elem](r *Registry, dtype register.DataType) {
	must(r.RegisterTyped("source", dtype, newSource[T]))
	must(r.RegisterTyped("add", dtype, func(*plan.ActorDesc) (IKernel, error) {
		return &add[T]{slots: slots{minIn: 1, minOut: 1}}, nil
	}))

	clip := func(op string, lo, hi bool) {
		must(r.RegisterTyped(op, dtype, func(desc *plan.ActorDesc) (IKernel, error) {
			b, err := loadBounds[T](desc, dtype, lo, hi)
			if err != nil {
				return nil, err
			}
			return newUnary[T](b.clip), nil
		}))
		must(r.RegisterTyped(op+"_grad", dtype, func(desc *plan.ActorDesc) (IKernel, error) {
			b, err := loadBounds[T](desc, dtype, lo, hi)
			if err != nil {
				return nil, err
			}
			return newGrad[T](b.grad), nil
		}))
	}
	clip("clip_by_scalar", true, true)
	clip("clip_by_scalar_min", true, false)
	clip("clip_by_scalar_max", false, true)
}

// registerFloat 只对浮点类型注册
func registerFloat[T Float](r *Registry, dtype register.DataType) {
	must(r.RegisterTyped("gelu", dtype, func(*plan.ActorDesc) (IKernel, error) {
		return newUnary[T](gelu[T]), nil
	}))
	must(r.RegisterTyped("gelu_grad", dtype, func(*plan.ActorDesc) (IKernel, error) {
		return newGrad[T](geluGrad[T]), nil
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
