package domain

// State is the lifecycle position of a single request.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateRouted       State = "ROUTED"
	StateDispatching  State = "DISPATCHING"
	StateAwaiting     State = "AWAITING"
	StateSynthesizing State = "SYNTHESIZING"
	StateDone         State = "DONE"
	StateRejected     State = "REJECTED"
	StatePartial      State = "PARTIAL"
	StateFailed       State = "FAILED"
)

var transitions = map[State][]State{
	StateReceived:     {StateRouted, StateRejected},
	StateRouted:       {StateDispatching, StateFailed},
	StateDispatching:  {StateAwaiting, StateFailed},
	StateAwaiting:     {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateDone, StatePartial, StateFailed},
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether moving from s to next is permitted.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
