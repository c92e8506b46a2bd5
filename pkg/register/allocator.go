package register

import (
	"fmt"
	"sync/atomic"
)

// IAllocator 内存分配接口，只在 pool 构造和销毁时调用
type IAllocator interface {
	Allocate(size int, device string) ([]byte, error)
	Free(buf []byte)
}

var _ IAllocator = (*HostAllocator)(nil)

// HostAllocator 主机内存分配器，记录仍未释放的字节数
type HostAllocator struct {
	liveBytes   atomic.Int64
	liveBuffers atomic.Int64
}

func NewHostAllocator() *HostAllocator {
	return &HostAllocator{}
}

func (a *HostAllocator) Allocate(size int, device string) ([]byte, error) {
	switch device {
	case "", "cpu", "host":
	default:
		return nil, fmt.Errorf("host allocator: unsupported device %q", device)
	}
	if size < 0 {
		return nil, fmt.Errorf("host allocator: negative size %d", size)
	}
	a.liveBytes.Add(int64(size))
	a.liveBuffers.Add(1)
	return make([]byte, size), nil
}

func (a *HostAllocator) Free(buf []byte) {
	a.liveBytes.Add(-int64(len(buf)))
	a.liveBuffers.Add(-1)
}

// LiveBytes 尚未释放的字节数
func (a *HostAllocator) LiveBytes() int64 {
	return a.liveBytes.Load()
}

// LiveBuffers 尚未释放的 buffer 数
func (a *HostAllocator) LiveBuffers() int64 {
	return a.liveBuffers.Load()
}
