// Package diag 运行期诊断：定时巡检 actor 快照，发现停滞的图并上报状态
//
// 数据流核心不检测资源耗尽导致的死锁（比如环路上没有预置寄存器），
// 巡检器通过比较相邻两次快照的 act 计数和已处理消息数判断整张图是否还在前进。
package diag

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/pkg/glog"
	"github.com/dzm2020/regflow/pkg/lib/stopper"
	"go.uber.org/zap"
)

// ISource 快照来源，一般是 graph.Graph
type ISource interface {
	Snapshot() []actor.Snapshot
}

// IReporter 快照上报
type IReporter interface {
	Report(ctx context.Context, snaps []actor.Snapshot) error
}

type progress struct {
	acts      int64
	processed int64
}

// every 固定间隔的调度器
type every time.Duration

func (e every) Next(prev time.Time) time.Time {
	return prev.Add(time.Duration(e))
}

type Watchdog struct {
	src  ISource
	opts *Options
	tw   *timingwheel.TimingWheel
	stop stopper.Stopper

	mu      sync.Mutex
	timer   *timingwheel.Timer
	last    map[int64]progress
	idle    int
	stalled bool
	ticks   int64
}

func New(src ISource, options ...Option) *Watchdog {
	opts := loadOptions(options...)
	tick := opts.Interval / 10
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	return &Watchdog{
		src:  src,
		opts: opts,
		tw:   timingwheel.NewTimingWheel(tick, 64),
		last: make(map[int64]progress),
	}
}

// Start 启动时间轮，停止之后不能再启动
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil || w.stop.IsStop() {
		return
	}
	w.tw.Start()
	w.timer = w.tw.ScheduleFunc(every(w.opts.Interval), w.Tick)
}

// Stop 停止巡检，可重复调用
func (w *Watchdog) Stop() {
	w.stop.Do(func() {
		w.mu.Lock()
		timer := w.timer
		w.mu.Unlock()
		if timer == nil {
			return
		}
		timer.Stop()
		w.tw.Stop()
	})
}

// Run 巡检直到 ctx 结束，最后再上报一次
func (w *Watchdog) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	w.Stop()
	w.Tick()
	return nil
}

// Stalled 当前是否处于停滞
func (w *Watchdog) Stalled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stalled
}

// Tick 巡检一次，时间轮协程调用，测试里也可以直接调用
func (w *Watchdog) Tick() {
	snaps := w.src.Snapshot()

	w.mu.Lock()
	w.ticks++
	moved, live := false, 0
	for _, s := range snaps {
		cur := progress{acts: s.Acts, processed: s.Processed}
		if prev, ok := w.last[s.ID]; !ok || prev != cur {
			moved = true
		}
		w.last[s.ID] = cur
		if !finished(s) {
			live++
		}
	}
	var fire bool
	if moved || live == 0 {
		if w.stalled {
			glog.Info("graph progressing again", zap.Int64("tick", w.ticks))
		}
		w.idle, w.stalled = 0, false
	} else {
		w.idle++
		if w.idle >= w.opts.StallTicks && !w.stalled {
			w.stalled, fire = true, true
		}
	}
	w.mu.Unlock()

	if fire {
		w.logStall(snaps)
		if w.opts.OnStall != nil {
			w.opts.OnStall(snaps)
		}
	}
	if w.opts.Reporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.Interval)
		defer cancel()
		if err := w.opts.Reporter.Report(ctx, snaps); err != nil {
			glog.Warn("report snapshot failed", zap.Error(err))
		}
	}
}

func (w *Watchdog) logStall(snaps []actor.Snapshot) {
	glog.Warn("graph stalled", zap.Int("ticks", w.opts.StallTicks), zap.Duration("interval", w.opts.Interval))
	for _, s := range snaps {
		if finished(s) {
			continue
		}
		glog.Warn("stalled actor",
			glog.Actor(s.ID),
			zap.String("name", s.Name),
			zap.String("state", s.State),
			zap.Int64("acts", s.Acts),
			zap.Any("queued", s.Queued),
			zap.Any("pools", s.Pools),
			zap.Int("inbox", s.Inbox))
	}
}

func finished(s actor.Snapshot) bool {
	return s.Aborted || s.State == actor.StateTerminated.String()
}
