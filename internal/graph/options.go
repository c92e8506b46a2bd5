package graph

import (
	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/internal/channel"
	"github.com/dzm2020/regflow/internal/job"
	"github.com/dzm2020/regflow/internal/kernel"
	"github.com/dzm2020/regflow/pkg/register"
)

type Option func(*Options)

type Options struct {
	Dispatcher actor.IDispatcher
	Registry   *kernel.Registry
	Transport  channel.ITransport
	Channel    *channel.Channel
	JobName    string
	Node       string
	Allocator  register.IAllocator
	Callbacks  map[string]job.Callback
}

func loadOptions(options ...Option) *Options {
	opts := &Options{Callbacks: make(map[string]job.Callback)}
	for _, option := range options {
		option(opts)
	}
	if opts.Registry == nil {
		opts.Registry = kernel.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = actor.NewDefaultDispatcher(300)
	}
	return opts
}

// WithDispatcher 所有本地 actor 共用的调度器
func WithDispatcher(d actor.IDispatcher) Option {
	return func(o *Options) {
		o.Dispatcher = d
	}
}

func WithRegistry(r *kernel.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithTransport 跨进程传输，plan 中 node 与本节点不同的 actor 经由它发送
func WithTransport(t channel.ITransport) Option {
	return func(o *Options) {
		o.Transport = t
	}
}

// WithChannel 使用外部创建的通道，传输层需要先拿到通道用于投递入站消息时使用
func WithChannel(ch *channel.Channel) Option {
	return func(o *Options) {
		o.Channel = ch
	}
}

func WithJobName(name string) Option {
	return func(o *Options) {
		o.JobName = name
	}
}

func WithNode(node string) Option {
	return func(o *Options) {
		o.Node = node
	}
}

func WithAllocator(alloc register.IAllocator) Option {
	return func(o *Options) {
		o.Allocator = alloc
	}
}

// WithCallback 注册 sink kernel 使用的宿主回调
func WithCallback(name string, cb job.Callback) Option {
	return func(o *Options) {
		o.Callbacks[name] = cb
	}
}
