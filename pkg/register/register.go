// Package register 寄存器（可复用的 buffer 槽位）及其所属的环形池
package register

import (
	"fmt"
	"sync/atomic"
)

// State 寄存器状态，任何时刻只处于其中一种
type State int32

const (
	StateFree     State = iota // 在池里，没有人引用
	StateWriting               // 被生产者独占写
	StateInFlight              // 已交给消费者，等待全部归还
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateWriting:
		return "being-written"
	case StateInFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Meta 发布时打上的元数据
type Meta struct {
	PieceID  int64 `msgpack:"piece"`
	ColID    int64 `msgpack:"col"`
	MaxColID int64 `msgpack:"maxCol"`
	ActID    int64 `msgpack:"act"`
}

// Register 一个生产者、一组消费者之间传递的 buffer 槽位
type Register struct {
	id       int64
	slot     string
	producer int64
	index    int
	blob     *Blob
	state    atomic.Int32
	meta     Meta
	pending  map[int64]struct{} // 还没归还的消费者
	mirror   bool
}

func (r *Register) ID() int64        { return r.id }
func (r *Register) Slot() string     { return r.slot }
func (r *Register) Producer() int64  { return r.producer }
func (r *Register) Index() int       { return r.index }
func (r *Register) Blob() *Blob      { return r.blob }
func (r *Register) Meta() Meta       { return r.meta }
func (r *Register) PieceID() int64   { return r.meta.PieceID }
func (r *Register) IsMirror() bool   { return r.mirror }
func (r *Register) State() State     { return State(r.state.Load()) }
func (r *Register) setState(s State) { r.state.Store(int32(s)) }

// Outstanding 尚未归还的消费者个数
func (r *Register) Outstanding() int {
	return len(r.pending)
}

func (r *Register) String() string {
	return fmt.Sprintf("regst(id=%d slot=%s producer=%d piece=%d %s)", r.id, r.slot, r.producer, r.meta.PieceID, r.State())
}

// NewMirror 构造远端寄存器在本进程的只读镜像，由传输层在收到数据时创建
func NewMirror(id int64, slot string, producer int64, blob *Blob, meta Meta) *Register {
	r := &Register{
		id:       id,
		slot:     slot,
		producer: producer,
		index:    -1,
		blob:     blob,
		meta:     meta,
		mirror:   true,
	}
	r.setState(StateInFlight)
	return r
}
