package stopper

import "sync/atomic"

// Stopper 只能生效一次的停止标记
type Stopper struct {
	isStopped atomic.Bool
}

func (s *Stopper) IsStop() bool {
	return s.isStopped.Load()
}

// Stop 第一次调用返回 true，之后都返回 false
func (s *Stopper) Stop() bool {
	return s.isStopped.CompareAndSwap(false, true)
}

// Do 第一次停止时执行 f，返回是否执行
func (s *Stopper) Do(f func()) bool {
	if !s.Stop() {
		return false
	}
	if f != nil {
		f()
	}
	return true
}
