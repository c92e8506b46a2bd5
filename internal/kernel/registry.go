package kernel

import (
	"fmt"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/lib/factory"
	"github.com/dzm2020/regflow/pkg/register"
	"golang.org/x/exp/slices"
)

// Factory 根据 actor 描述构造 kernel
type Factory func(desc *plan.ActorDesc) (IKernel, error)

type key struct {
	op    string
	dtype register.DataType
}

func (k key) String() string {
	if k.dtype == register.DTypeInvalid {
		return k.op
	}
	return fmt.Sprintf("%s<%s>", k.op, k.dtype)
}

// Registry op 类型 → 工厂，同一个 op 可以按数据类型注册多个实现
type Registry struct {
	factories *factory.Manager[key, Factory]
}

func NewRegistry() *Registry {
	return &Registry{factories: factory.New[key, Factory]()}
}

// Register 注册与数据类型无关的 kernel
func (r *Registry) Register(op string, f Factory) error {
	return r.RegisterTyped(op, register.DTypeInvalid, f)
}

// RegisterTyped 注册指定数据类型的 kernel
func (r *Registry) RegisterTyped(op string, dtype register.DataType, f Factory) error {
	return errs.Wrapf(r.factories.Register(key{op, dtype}, f), "register kernel %s", key{op, dtype})
}

// Has 是否存在这个 op 的任何实现
func (r *Registry) Has(op string) bool {
	for _, k := range r.factories.Keys() {
		if k.op == op {
			return true
		}
	}
	return false
}

// Ops 所有已注册的实现，形如 gelu<float32>
func (r *Registry) Ops() []string {
	keys := r.factories.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	slices.Sort(names)
	return names
}

// Create 先找类型匹配的实现，找不到再找类型无关的
func (r *Registry) Create(desc *plan.ActorDesc, dtype register.DataType) (IKernel, error) {
	op := desc.Kernel.OpType
	f, ok := r.factories.Get(key{op, dtype})
	if !ok {
		f, ok = r.factories.Get(key{op, register.DTypeInvalid})
	}
	if !ok {
		return nil, &errs.Error{
			Category: errs.CategoryConfig,
			Actor:    desc.ID,
			Err:      errs.Wrapf(errs.ErrUnknownOpType, "%s", key{op, dtype}),
		}
	}
	k, err := f(desc)
	if err != nil {
		return nil, errs.Config(desc.ID, "", "create kernel %s: %v", op, err)
	}
	return k, nil
}

var defaultRegistry = NewRegistry()

// Default 带全部内置 kernel 的注册表
func Default() *Registry {
	return defaultRegistry
}
