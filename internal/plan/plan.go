// Package plan 编译阶段产出的静态执行计划：每个 actor 的输入输出绑定、流水深度和 kernel
package plan

import (
	"fmt"

	"github.com/dzm2020/regflow/internal/errs"
	"golang.org/x/exp/slices"
)

// Plan 全部 actor 的静态描述
type Plan struct {
	Name   string       `yaml:"name"`
	Actors []*ActorDesc `yaml:"actors"`
}

// ActorDesc 单个 actor 的描述
type ActorDesc struct {
	ID         int64         `yaml:"id"`
	Name       string        `yaml:"name"`
	Node       string        `yaml:"node"`   // 所在进程，空表示本地
	Device     string        `yaml:"device"` // cpu / host
	Kernel     KernelConf    `yaml:"kernel"`
	AllowEmpty bool          `yaml:"allow_empty"` // 某个输入已结束时是否仍以空输入执行
	MaxPieces  int64         `yaml:"max_pieces"`  // 源 actor 最多产出的 piece 数，0 不限制
	Inputs     []*InputDesc  `yaml:"inputs"`
	Outputs    []*OutputDesc `yaml:"outputs"`
}

// KernelConf kernel 类型和属性
type KernelConf struct {
	OpType string `yaml:"op"`
	Attrs  Attrs  `yaml:"attrs"`
}

// InputDesc 输入槽绑定到一个生产者的输出槽
type InputDesc struct {
	Name         string `yaml:"name"`
	Producer     int64  `yaml:"producer"`
	ProducerSlot string `yaml:"producer_slot"`
}

// OutputDesc 输出槽：消费者列表、流水深度和 buffer 规格
type OutputDesc struct {
	Name      string        `yaml:"name"`
	Depth     int           `yaml:"depth"`
	Seed      int           `yaml:"seed"` // 启动时预先发布的空寄存器个数，用于环路的反馈边
	ByteSize  int           `yaml:"byte_size"`
	Shape     []int64       `yaml:"shape"`
	DType     string        `yaml:"dtype"`
	Consumers []ConsumerRef `yaml:"consumers"`
}

// ConsumerRef 消费者 actor 和它的输入槽名
type ConsumerRef struct {
	Actor int64  `yaml:"actor"`
	Slot  string `yaml:"slot"`
}

// Lookup 按 id 找 actor
func (p *Plan) Lookup(id int64) *ActorDesc {
	for _, a := range p.Actors {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// IDs 排序后的 actor id
func (p *Plan) IDs() []int64 {
	ids := make([]int64, 0, len(p.Actors))
	for _, a := range p.Actors {
		ids = append(ids, a.ID)
	}
	slices.Sort(ids)
	return ids
}

// AddActor 添加 actor，返回自身便于链式调用
func (p *Plan) AddActor(a *ActorDesc) *Plan {
	p.Actors = append(p.Actors, a)
	return p
}

// Connect 把 from 的输出槽连到 to 的输入槽，输出槽不存在时按深度 1 创建
func (p *Plan) Connect(from int64, fromSlot string, to int64, toSlot string) error {
	src, dst := p.Lookup(from), p.Lookup(to)
	if src == nil {
		return errs.Config(from, fromSlot, "connect: producer not found")
	}
	if dst == nil {
		return errs.Config(to, toSlot, "connect: consumer not found")
	}
	out := src.Output(fromSlot)
	if out == nil {
		out = &OutputDesc{Name: fromSlot, Depth: 1}
		src.Outputs = append(src.Outputs, out)
	}
	out.Consumers = append(out.Consumers, ConsumerRef{Actor: to, Slot: toSlot})
	dst.Inputs = append(dst.Inputs, &InputDesc{Name: toSlot, Producer: from, ProducerSlot: fromSlot})
	return nil
}

// Output 按名字找输出槽
func (a *ActorDesc) Output(name string) *OutputDesc {
	for _, o := range a.Outputs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Input 按名字找输入槽
func (a *ActorDesc) Input(name string) *InputDesc {
	for _, in := range a.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// IsSource 没有输入的 actor
func (a *ActorDesc) IsSource() bool {
	return len(a.Inputs) == 0
}

func (a *ActorDesc) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s(%d)", a.Name, a.ID)
	}
	return fmt.Sprintf("actor(%d)", a.ID)
}

// New 创建空计划，配合 AddActor / Connect 在代码里构造
func New(name string) *Plan {
	return &Plan{Name: name}
}
