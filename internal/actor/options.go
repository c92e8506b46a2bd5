package actor

import (
	"time"

	"github.com/dzm2020/regflow/internal/kernel"
)

const releaseTimeout = 3 * time.Second

// Option actor 构造选项
type Option func(*Options)

type Options struct {
	Dispatcher IDispatcher
	Registry   *kernel.Registry
	// OnDone actor 终止或出错中止时调用一次，err 为 nil 表示正常终止
	OnDone func(id int64, err error)
}

func loadOptions(options ...Option) *Options {
	opts := &Options{}
	for _, option := range options {
		option(opts)
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDefaultDispatcher(300)
	}
	if opts.Registry == nil {
		opts.Registry = kernel.Default()
	}
	return opts
}

func WithDispatcher(d IDispatcher) Option {
	return func(o *Options) {
		o.Dispatcher = d
	}
}

func WithRegistry(r *kernel.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

func WithOnDone(f func(id int64, err error)) Option {
	return func(o *Options) {
		o.OnDone = f
	}
}
