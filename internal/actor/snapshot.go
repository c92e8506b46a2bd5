package actor

import (
	"github.com/dzm2020/regflow/pkg/register"
)

// Snapshot actor 的诊断快照，工作协程每处理完一批消息更新一次
type Snapshot struct {
	ID          int64                      `json:"id" msgpack:"id"`
	Name        string                     `json:"name" msgpack:"name"`
	State       string                     `json:"state" msgpack:"state"`
	Acts        int64                      `json:"acts" msgpack:"acts"`
	Processed   int64                      `json:"processed" msgpack:"processed"`
	Queued      map[string]int             `json:"queued" msgpack:"queued"`
	EndOfStream map[string]bool            `json:"eos" msgpack:"eos"`
	Pools       map[string]register.Counts `json:"pools" msgpack:"pools"`
	Inbox       int                        `json:"inbox" msgpack:"inbox"`
	Aborted     bool                       `json:"aborted" msgpack:"aborted"`
	Interrupted bool                       `json:"interrupted,omitempty" msgpack:"interrupted,omitempty"`
	Err         string                     `json:"err,omitempty" msgpack:"err,omitempty"`
}

func (a *Actor) publishSnapshot() {
	s := &Snapshot{
		ID:          a.id,
		Name:        a.desc.Name,
		State:       a.state.String(),
		Acts:        a.actID,
		Processed:   a.processed,
		Queued:      make(map[string]int, len(a.inputs)),
		EndOfStream: make(map[string]bool, len(a.inputs)),
		Pools:       a.pool.AllCounts(),
		Aborted:     a.aborted,
		Interrupted: a.cut,
	}
	for _, in := range a.inputs {
		s.Queued[in.name] = len(in.queue)
		s.EndOfStream[in.name] = in.eos
	}
	if a.err != nil {
		s.Err = a.err.Error()
	}
	a.snap.Store(s)
}

// Snapshot 最近一次的快照，可在任意协程调用；返回值不要修改
func (a *Actor) Snapshot() Snapshot {
	s := *a.snap.Load()
	s.Inbox = a.mailbox.Inbox().Len()
	return s
}
