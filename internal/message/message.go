// Package message actor 之间传递的消息
package message

import (
	"fmt"

	"github.com/dzm2020/regflow/pkg/register"
)

// Kind 消息类型
type Kind uint8

const (
	KindRegisterAvailable Kind = iota + 1 // 生产者 → 消费者：寄存器可读
	KindRegisterReturned                  // 消费者 → 生产者：寄存器用完
	KindEndOfStream                       // 生产者 → 消费者：该槽不会再有数据
	KindCommand                           // 驱动 → actor：控制命令
)

func (k Kind) String() string {
	switch k {
	case KindRegisterAvailable:
		return "RegisterAvailable"
	case KindRegisterReturned:
		return "RegisterReturned"
	case KindEndOfStream:
		return "EndOfStream"
	case KindCommand:
		return "Command"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Command 控制命令
type Command uint8

const (
	CmdStart Command = iota + 1
	CmdStop
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "Start"
	case CmdStop:
		return "Stop"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// DriverID 驱动发出的命令使用的源 id
const DriverID int64 = 0

// Message 消息，按 Kind 区分使用的字段
//
// RegisterAvailable 只携带寄存器句柄，不拷贝数据；持有这条消息即获得该寄存器的读权限。
// 跨进程发送时由传输层把数据放进 Payload，接收端再还原成镜像寄存器。
type Message struct {
	Kind       Kind               `msgpack:"k"`
	Src        int64              `msgpack:"s"`
	Dst        int64              `msgpack:"d"`
	RegisterID int64              `msgpack:"r,omitempty"`
	Slot       string             `msgpack:"sl,omitempty"`
	Meta       register.Meta      `msgpack:"m,omitempty"`
	Command    Command            `msgpack:"c,omitempty"`
	Payload    *register.Blob     `msgpack:"p,omitempty"`
	Reg        *register.Register `msgpack:"-"`
}

// NewAvailable 生产者发布寄存器时构造
func NewAvailable(src, dst int64, reg *register.Register) *Message {
	return &Message{
		Kind:       KindRegisterAvailable,
		Src:        src,
		Dst:        dst,
		RegisterID: reg.ID(),
		Slot:       reg.Slot(),
		Meta:       reg.Meta(),
		Reg:        reg,
	}
}

// NewReturned 消费者归还寄存器
func NewReturned(src, dst, registerID int64) *Message {
	return &Message{Kind: KindRegisterReturned, Src: src, Dst: dst, RegisterID: registerID}
}

// NewEndOfStream 生产者的某个输出槽结束
func NewEndOfStream(src, dst int64, slot string) *Message {
	return &Message{Kind: KindEndOfStream, Src: src, Dst: dst, Slot: slot}
}

// NewCommand 驱动发给 actor 的命令
func NewCommand(dst int64, cmd Command) *Message {
	return &Message{Kind: KindCommand, Src: DriverID, Dst: dst, Command: cmd}
}

// PieceID RegisterAvailable 携带的 piece id
func (m *Message) PieceID() int64 {
	return m.Meta.PieceID
}

func (m *Message) String() string {
	switch m.Kind {
	case KindRegisterAvailable:
		return fmt.Sprintf("%s{%d->%d regst=%d slot=%s piece=%d}", m.Kind, m.Src, m.Dst, m.RegisterID, m.Slot, m.Meta.PieceID)
	case KindRegisterReturned:
		return fmt.Sprintf("%s{%d->%d regst=%d}", m.Kind, m.Src, m.Dst, m.RegisterID)
	case KindEndOfStream:
		return fmt.Sprintf("%s{%d->%d slot=%s}", m.Kind, m.Src, m.Dst, m.Slot)
	case KindCommand:
		return fmt.Sprintf("%s{%s ->%d}", m.Kind, m.Command, m.Dst)
	default:
		return fmt.Sprintf("%s{%d->%d}", m.Kind, m.Src, m.Dst)
	}
}
