package register

import (
	"github.com/dzm2020/regflow/internal/errs"
	"golang.org/x/exp/slices"
)

// SlotConfig 一个输出槽的静态配置
type SlotConfig struct {
	Name      string
	Depth     int // 流水深度，即环里的物理 buffer 个数
	ByteSize  int
	Shape     []int64
	DType     DataType
	Device    string
	Consumers []int64
}

// Counts 一个槽位的寄存器计数，Free+Writing+InFlight 恒等于 Depth
type Counts struct {
	Depth    int  `json:"depth" msgpack:"depth"`
	Free     int  `json:"free" msgpack:"free"`
	Writing  int  `json:"writing" msgpack:"writing"`
	InFlight int  `json:"inFlight" msgpack:"inFlight"`
	Released bool `json:"released,omitempty" msgpack:"released,omitempty"` // buffer 已还给分配器，计数保持释放前的值
}

type ring struct {
	cfg       SlotConfig
	regs      []*Register
	free      []*Register // 先归还的先复用
	writing   int
	inflight  int
	lastPiece int64
	published int64
}

// Pool 一个 actor 拥有的全部输出寄存器
//
// Pool 不加锁：只能由所属 actor 的工作协程访问，消费者的归还必须通过消息
// 回到这个协程后再调用 Return。
type Pool struct {
	owner    int64
	alloc    IAllocator
	rings    map[string]*ring
	order    []string
	byID     map[int64]*Register
	released bool
}

// NewPool 按槽位配置一次性分配所有 buffer，nextID 生成全局唯一的寄存器 id
func NewPool(owner int64, slots []SlotConfig, alloc IAllocator, nextID func() int64) (*Pool, error) {
	if alloc == nil {
		alloc = NewHostAllocator()
	}
	p := &Pool{
		owner: owner,
		alloc: alloc,
		rings: make(map[string]*ring, len(slots)),
		byID:  make(map[int64]*Register),
	}
	for _, cfg := range slots {
		if cfg.Depth < 1 {
			p.freeAll()
			return nil, errs.Config(owner, cfg.Name, "pipelining depth must be >= 1, got %d", cfg.Depth)
		}
		if _, ok := p.rings[cfg.Name]; ok {
			p.freeAll()
			return nil, errs.Config(owner, cfg.Name, "duplicate output slot")
		}
		size := cfg.ByteSize
		if size == 0 {
			size = int(NewBlob(nil, cfg.Shape, cfg.DType).ElemCount()) * cfg.DType.Size()
		}
		rg := &ring{cfg: cfg, lastPiece: -1 << 62}
		rg.cfg.Consumers = slices.Clone(cfg.Consumers)
		p.rings[cfg.Name] = rg
		p.order = append(p.order, cfg.Name)
		for i := 0; i < cfg.Depth; i++ {
			buf, err := alloc.Allocate(size, cfg.Device)
			if err != nil {
				p.freeAll()
				return nil, errs.Config(owner, cfg.Name, "allocate %d bytes: %v", size, err)
			}
			reg := &Register{
				id:       nextID(),
				slot:     cfg.Name,
				producer: owner,
				index:    i,
				blob:     NewBlob(buf, cfg.Shape, cfg.DType),
			}
			reg.setState(StateFree)
			rg.regs = append(rg.regs, reg)
			rg.free = append(rg.free, reg)
			p.byID[reg.id] = reg
		}
	}
	return p, nil
}

func (p *Pool) Owner() int64 { return p.owner }

// Slots 按配置顺序返回槽位名
func (p *Pool) Slots() []string { return p.order }

// Consumers 槽位的消费者 actor
func (p *Pool) Consumers(slot string) []int64 {
	if rg, ok := p.rings[slot]; ok {
		return rg.cfg.Consumers
	}
	return nil
}

// Lookup 根据 id 找寄存器
func (p *Pool) Lookup(id int64) *Register {
	return p.byID[id]
}

// CanAcquire 槽位是否还有空闲寄存器
func (p *Pool) CanAcquire(slot string) bool {
	rg, ok := p.rings[slot]
	return ok && len(rg.free) > 0 && !p.released
}

// Acquire 取一个空闲寄存器来写，没有空闲时返回 false，这是正常的背压而不是错误
func (p *Pool) Acquire(slot string) (*Register, bool) {
	rg, ok := p.rings[slot]
	if !ok || len(rg.free) == 0 || p.released {
		return nil, false
	}
	reg := rg.free[0]
	rg.free[0] = nil
	rg.free = rg.free[1:]
	rg.writing++
	reg.setState(StateWriting)
	reg.blob.ValidNum = nil
	return reg, true
}

// Publish 写完的寄存器交给全部消费者，返回需要通知的消费者
//
// 没有消费者的槽位直接回到空闲状态。
func (p *Pool) Publish(reg *Register, meta Meta) ([]int64, error) {
	rg, err := p.ringOf(reg)
	if err != nil {
		return nil, err
	}
	if reg.State() != StateWriting {
		return nil, errs.Wrapf(errs.ErrNotWriting, "publish %s", reg)
	}
	if meta.PieceID < rg.lastPiece {
		return nil, errs.Wrapf(errs.ErrPieceRegressed, "slot %s piece %d after %d", rg.cfg.Name, meta.PieceID, rg.lastPiece)
	}
	rg.lastPiece = meta.PieceID
	rg.published++
	reg.meta = meta
	rg.writing--
	if len(rg.cfg.Consumers) == 0 {
		p.toFree(rg, reg)
		return nil, nil
	}
	reg.pending = make(map[int64]struct{}, len(rg.cfg.Consumers))
	for _, c := range rg.cfg.Consumers {
		reg.pending[c] = struct{}{}
	}
	rg.inflight++
	reg.setState(StateInFlight)
	return rg.cfg.Consumers, nil
}

// Return 记录一个消费者用完了寄存器，全部归还后回到空闲，freed 表示这一次是否释放
func (p *Pool) Return(registerID, consumer int64) (freed bool, err error) {
	reg, ok := p.byID[registerID]
	if !ok {
		return false, errs.Wrapf(errs.ErrUnknownRegister, "register %d returned by %d", registerID, consumer)
	}
	if reg.State() != StateInFlight {
		return false, errs.Wrapf(errs.ErrNotInFlight, "%s returned by %d", reg, consumer)
	}
	if _, ok = reg.pending[consumer]; !ok {
		return false, errs.Wrapf(errs.ErrUnexpectedReturn, "%s returned by %d", reg, consumer)
	}
	delete(reg.pending, consumer)
	if len(reg.pending) > 0 {
		return false, nil
	}
	rg := p.rings[reg.slot]
	rg.inflight--
	p.toFree(rg, reg)
	return true, nil
}

// Abandon 放弃一个正在写的寄存器，不发布直接回池
func (p *Pool) Abandon(reg *Register) error {
	rg, err := p.ringOf(reg)
	if err != nil {
		return err
	}
	if reg.State() != StateWriting {
		return errs.Wrapf(errs.ErrNotWriting, "abandon %s", reg)
	}
	rg.writing--
	p.toFree(rg, reg)
	return nil
}

func (p *Pool) toFree(rg *ring, reg *Register) {
	reg.pending = nil
	reg.setState(StateFree)
	rg.free = append(rg.free, reg)
}

func (p *Pool) ringOf(reg *Register) (*ring, error) {
	if reg == nil {
		return nil, errs.Wrapf(errs.ErrUnknownRegister, "nil register")
	}
	rg, ok := p.rings[reg.slot]
	if !ok || p.byID[reg.id] != reg {
		return nil, errs.Wrapf(errs.ErrUnknownRegister, "%s not owned by %d", reg, p.owner)
	}
	return rg, nil
}

// Counts 槽位计数
func (p *Pool) Counts(slot string) Counts {
	rg, ok := p.rings[slot]
	if !ok {
		return Counts{}
	}
	return Counts{Depth: rg.cfg.Depth, Free: len(rg.free), Writing: rg.writing, InFlight: rg.inflight, Released: p.released}
}

// AllCounts 全部槽位计数
func (p *Pool) AllCounts() map[string]Counts {
	m := make(map[string]Counts, len(p.order))
	for _, name := range p.order {
		m[name] = p.Counts(name)
	}
	return m
}

// Released buffer 是否已经还给分配器
func (p *Pool) Released() bool {
	return p.released
}

// InFlight 所有槽位中 in-flight 的寄存器总数
func (p *Pool) InFlight() int {
	n := 0
	for _, rg := range p.rings {
		n += rg.inflight
	}
	return n
}

// Published 槽位累计发布次数
func (p *Pool) Published(slot string) int64 {
	if rg, ok := p.rings[slot]; ok {
		return rg.published
	}
	return 0
}

// Release 把所有 buffer 还给分配器，可重复调用
//
// 仍有寄存器 in-flight 时不释放，返回 false：消费者可能还在读。
func (p *Pool) Release() bool {
	if p.released {
		return true
	}
	if p.InFlight() > 0 {
		return false
	}
	p.freeAll()
	return true
}

func (p *Pool) freeAll() {
	if p.released {
		return
	}
	p.released = true
	for _, rg := range p.rings {
		for _, reg := range rg.regs {
			p.alloc.Free(reg.blob.Data)
			reg.blob.Data = nil
		}
	}
}
