package stopper

import "testing"

func TestStopper_Do(t *testing.T) {
	var s Stopper
	count := 0
	for i := 0; i < 3; i++ {
		s.Do(func() { count++ })
	}
	if count != 1 {
		t.Fatalf("Do 只应该执行一次，实际 %d 次", count)
	}
	if !s.IsStop() {
		t.Fatal("Do 之后应该处于停止状态")
	}
	if s.Stop() {
		t.Fatal("重复 Stop 应该返回 false")
	}
}
