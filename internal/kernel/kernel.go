// Package kernel actor 每一步执行的计算：接口、能力扩展、注册表和内置 kernel
package kernel

import (
	"errors"

	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
)

// ErrEndOfStream 源 kernel 返回它表示不会再产出数据，不算失败
var ErrEndOfStream = errors.New("kernel: end of stream")

// IKernel 纯计算，只读输入、只写输出
type IKernel interface {
	Compute(ctx *Context) error
}

// IEmptyAware 输入为空时是否仍然调用 Compute，未实现视为 false
type IEmptyAware interface {
	ComputeOnEmpty() bool
}

// IInitializer actor 初始化时调用一次，可以在这里校验槽位和属性
type IInitializer interface {
	Init(desc *plan.ActorDesc, job *job.Context) error
}

// Context 一次 Compute 的上下文，由所属 actor 复用
type Context struct {
	actor   int64
	actID   int64
	pieceID int64
	attrs   plan.Attrs
	job     *job.Context

	inNames  []string
	outNames []string
	inputs   map[string]*register.Blob
	outputs  map[string]*register.Blob
}

// NewContext 按 plan 里的槽位顺序建立上下文
func NewContext(desc *plan.ActorDesc, job *job.Context) *Context {
	c := &Context{
		actor:   desc.ID,
		attrs:   desc.Kernel.Attrs,
		job:     job,
		inputs:  make(map[string]*register.Blob, len(desc.Inputs)),
		outputs: make(map[string]*register.Blob, len(desc.Outputs)),
	}
	for _, in := range desc.Inputs {
		c.inNames = append(c.inNames, in.Name)
	}
	for _, out := range desc.Outputs {
		c.outNames = append(c.outNames, out.Name)
	}
	return c
}

// Reset 开始新的一步
func (c *Context) Reset(actID, pieceID int64) {
	c.actID = actID
	c.pieceID = pieceID
	clear(c.inputs)
	clear(c.outputs)
}

func (c *Context) BindInput(slot string, blob *register.Blob)  { c.inputs[slot] = blob }
func (c *Context) BindOutput(slot string, blob *register.Blob) { c.outputs[slot] = blob }

func (c *Context) ActorID() int64        { return c.actor }
func (c *Context) ActID() int64          { return c.actID }
func (c *Context) PieceID() int64        { return c.pieceID }
func (c *Context) Attrs() plan.Attrs     { return c.attrs }
func (c *Context) Job() *job.Context     { return c.job }
func (c *Context) InputNames() []string  { return c.inNames }
func (c *Context) OutputNames() []string { return c.outNames }

// Input 按槽名取输入，allow_empty 的 actor 中已结束的槽返回 nil
func (c *Context) Input(slot string) *register.Blob {
	return c.inputs[slot]
}

// Output 按槽名取输出
func (c *Context) Output(slot string) *register.Blob {
	return c.outputs[slot]
}

// InputAt 按 plan 中的顺序取第 i 个输入
func (c *Context) InputAt(i int) *register.Blob {
	if i < 0 || i >= len(c.inNames) {
		return nil
	}
	return c.inputs[c.inNames[i]]
}

// OutputAt 按 plan 中的顺序取第 i 个输出
func (c *Context) OutputAt(i int) *register.Blob {
	if i < 0 || i >= len(c.outNames) {
		return nil
	}
	return c.outputs[c.outNames[i]]
}

// ComputeOnEmpty 判断 kernel 是否要处理空输入
func ComputeOnEmpty(k IKernel) bool {
	if ea, ok := k.(IEmptyAware); ok {
		return ea.ComputeOnEmpty()
	}
	return false
}
