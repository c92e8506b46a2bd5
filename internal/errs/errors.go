// Package errs 数据流引擎的错误分类：配置错误、协议违例、kernel 失败
package errs

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// 通道相关错误
var (
	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("channel is closed")
	// ErrActorNotFound 目标 actor 不存在
	ErrActorNotFound = errors.New("actor not found")
	// ErrMessageIsNil 消息为空
	ErrMessageIsNil = errors.New("message is nil")
	// ErrNoTransport 目标 actor 不在本进程且没有配置传输层
	ErrNoTransport = errors.New("no transport for remote actor")
)

// 寄存器协议相关错误
var (
	// ErrUnknownRegister 归还了不存在的寄存器
	ErrUnknownRegister = errors.New("unknown register")
	// ErrNotInFlight 寄存器不在 in-flight 状态
	ErrNotInFlight = errors.New("register is not in flight")
	// ErrNotWriting 寄存器不在 being-written 状态
	ErrNotWriting = errors.New("register is not being written")
	// ErrUnexpectedReturn 非消费者或重复归还
	ErrUnexpectedReturn = errors.New("unexpected register return")
	// ErrUnboundSlot 收到了未绑定输入槽的消息
	ErrUnboundSlot = errors.New("message on unbound slot")
	// ErrIllegalTransition 非法状态迁移
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrPieceRegressed piece id 回退
	ErrPieceRegressed = errors.New("piece id regressed")
	// ErrDuplicateEndOfStream 同一个槽重复收到结束信号
	ErrDuplicateEndOfStream = errors.New("duplicate end of stream")
	// ErrDataAfterEndOfStream 结束信号之后又收到数据
	ErrDataAfterEndOfStream = errors.New("data after end of stream")
	// ErrMissingRegister RegisterAvailable 没有携带寄存器
	ErrMissingRegister = errors.New("register available without register")
)

// 图相关错误
var (
	// ErrUnknownOpType kernel 注册表里没有这个 op
	ErrUnknownOpType = errors.New("unknown op type")
	// ErrGraphStopped 图被外部停止
	ErrGraphStopped = errors.New("graph stopped")
	// ErrGraphStarted 图已经启动过
	ErrGraphStarted = errors.New("graph already started")
	// ErrWaiterTimeout 等待超时错误
	ErrWaiterTimeout = errors.New("waiter timeout")
)

// ErrInvalidConfig 引擎配置非法
var ErrInvalidConfig = errors.New("invalid engine config")

// Category 错误分类
type Category int

const (
	CategoryConfig Category = iota + 1
	CategoryProtocol
	CategoryKernel
)

func (c Category) String() string {
	switch c {
	case CategoryConfig:
		return "configuration error"
	case CategoryProtocol:
		return "protocol violation"
	case CategoryKernel:
		return "kernel failure"
	default:
		return "unknown error"
	}
}

// Error 携带出错 actor 和槽位的错误
type Error struct {
	Category Category
	Actor    int64
	Slot     string
	Err      error
}

func (e *Error) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("%s: actor=%d slot=%s: %v", e.Category, e.Actor, e.Slot, e.Err)
	}
	return fmt.Sprintf("%s: actor=%d: %v", e.Category, e.Actor, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Format 支持 %+v 打印内部错误的调用栈
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = io.WriteString(s, e.Error())
		_, _ = fmt.Fprintf(s, "\n%+v", e.Err)
		return
	}
	_, _ = io.WriteString(s, e.Error())
}

// Config 配置错误，发生在 Initializing 阶段，整个图直接失败
func Config(actor int64, slot string, format string, args ...interface{}) error {
	return &Error{Category: CategoryConfig, Actor: actor, Slot: slot, Err: pkgerrors.Errorf(format, args...)}
}

// Protocol 协议违例，cause 一般是本包的哨兵错误
func Protocol(actor int64, slot string, cause error, format string, args ...interface{}) error {
	return &Error{Category: CategoryProtocol, Actor: actor, Slot: slot, Err: pkgerrors.Wrapf(cause, format, args...)}
}

// Kernel kernel 执行失败
func Kernel(actor int64, cause error) error {
	return &Error{Category: CategoryKernel, Actor: actor, Err: pkgerrors.WithStack(cause)}
}

// Wrapf 附加上下文
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// CategoryOf 取错误分类，非本包错误返回 0
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return 0
}

func IsConfig(err error) bool   { return CategoryOf(err) == CategoryConfig }
func IsProtocol(err error) bool { return CategoryOf(err) == CategoryProtocol }
func IsKernel(err error) bool   { return CategoryOf(err) == CategoryKernel }
