package diag

import (
	"time"

	"github.com/dzm2020/regflow/internal/actor"
)

type Option func(*Options)

type Options struct {
	Interval   time.Duration
	StallTicks int
	Reporter   IReporter
	OnStall    func(snaps []actor.Snapshot)
}

func loadOptions(options ...Option) *Options {
	opts := &Options{Interval: time.Second, StallTicks: 10}
	for _, option := range options {
		option(opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.StallTicks <= 0 {
		opts.StallTicks = 1
	}
	return opts
}

// WithInterval 巡检间隔
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Interval = d
	}
}

// WithStallTicks 连续 n 次巡检都没有进展视为停滞
func WithStallTicks(n int) Option {
	return func(o *Options) {
		o.StallTicks = n
	}
}

// WithReporter 每次巡检把快照交给 r 上报
func WithReporter(r IReporter) Option {
	return func(o *Options) {
		o.Reporter = r
	}
}

// WithOnStall 停滞时回调，每次停滞只触发一次
func WithOnStall(f func(snaps []actor.Snapshot)) Option {
	return func(o *Options) {
		o.OnStall = f
	}
}
