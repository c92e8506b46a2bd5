// Package job 一次作业运行期间只读的共享上下文
//
// 所有 actor 构造时拿到同一个 *Context，取代全局单例：kernel 注册表、
// 分配器、寄存器 id 生成器和宿主回调都从这里取。
package job

import (
	"sync"
	"sync/atomic"

	"github.com/dzm2020/regflow/internal/plan"
	"github.com/dzm2020/regflow/pkg/register"
	"golang.org/x/exp/slices"
)

// Callback 宿主回调，sink kernel 每个 piece 调用一次
type Callback func(actor, piece int64, blob *register.Blob) error

// Context 作业上下文
type Context struct {
	name      string
	node      string
	plan      *plan.Plan
	alloc     register.IAllocator
	nextRegID atomic.Int64

	mu        sync.RWMutex
	callbacks map[string]Callback
}

// Option 作业上下文选项
type Option func(*Context)

// WithNode 本进程的节点名，plan 中 node 不同的 actor 视为远端
func WithNode(node string) Option {
	return func(c *Context) {
		c.node = node
	}
}

// WithAllocator 自定义分配器，默认 HostAllocator
func WithAllocator(alloc register.IAllocator) Option {
	return func(c *Context) {
		c.alloc = alloc
	}
}

// WithCallback 注册宿主回调
func WithCallback(name string, cb Callback) Option {
	return func(c *Context) {
		c.callbacks[name] = cb
	}
}

func New(name string, p *plan.Plan, opts ...Option) *Context {
	c := &Context{
		name:      name,
		plan:      p,
		callbacks: make(map[string]Callback),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.alloc == nil {
		c.alloc = register.NewHostAllocator()
	}
	return c
}

func (c *Context) Name() string                   { return c.name }
func (c *Context) Node() string                   { return c.node }
func (c *Context) Plan() *plan.Plan               { return c.plan }
func (c *Context) Allocator() register.IAllocator { return c.alloc }

// NextRegisterID 作业内唯一的寄存器 id，从 1 开始
func (c *Context) NextRegisterID() int64 {
	return c.nextRegID.Add(1)
}

// IsLocal actor 是否运行在本进程
func (c *Context) IsLocal(a *plan.ActorDesc) bool {
	return a.Node == "" || a.Node == c.node
}

// RegisterCallback 运行前注册回调，同名覆盖
func (c *Context) RegisterCallback(name string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[name] = cb
}

// Callback 按名字取回调
func (c *Context) Callback(name string) (Callback, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cb, ok := c.callbacks[name]
	return cb, ok
}

// CallbackNames 已注册的回调名，排序后返回
func (c *Context) CallbackNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.callbacks))
	for name := range c.callbacks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
