package actor

import "fmt"

// State actor 生命周期状态
type State int32

const (
	StateInitializing State = iota
	StateWaitingForInput
	StateReady
	StateExecuting
	StateWaitingForOutputSlot
	StateDraining
	StateTerminated
)

var stateNames = [...]string{
	StateInitializing:         "Initializing",
	StateWaitingForInput:      "WaitingForInput",
	StateReady:                "Ready",
	StateExecuting:            "Executing",
	StateWaitingForOutputSlot: "WaitingForOutputSlot",
	StateDraining:             "Draining",
	StateTerminated:           "Terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// transitions 合法的状态迁移，同状态迁移视为无操作不在表中
var transitions = map[State][]State{
	StateInitializing:         {StateWaitingForInput, StateDraining},
	StateWaitingForInput:      {StateReady, StateWaitingForOutputSlot, StateDraining},
	StateWaitingForOutputSlot: {StateReady, StateWaitingForInput, StateDraining},
	StateReady:                {StateExecuting, StateDraining},
	StateExecuting:            {StateReady, StateWaitingForInput, StateWaitingForOutputSlot, StateDraining},
	StateDraining:             {StateTerminated},
}

// CanTransit 是否允许从 s 迁移到 to
func (s State) CanTransit(to State) bool {
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Done 不会再执行 kernel
func (s State) Done() bool {
	return s == StateDraining || s == StateTerminated
}
