package core

// FlowState is the step an authentication attempt is in
type FlowState string

const (
	StateIdle       FlowState = "idle"
	StateConnecting FlowState = "connecting"
	StateSigning    FlowState = "signing"
	StateVerifying  FlowState = "verifying"
	StateSuccess    FlowState = "success"
	StateError      FlowState = "error"
)

// Pending reports whether an attempt is in flight
func (s FlowState) Pending() bool {
	return s == StateConnecting || s == StateSigning || s == StateVerifying
}

var transitions = map[FlowState][]FlowState{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateSigning, StateVerifying, StateSuccess, StateError, StateIdle},
	StateSigning:    {StateVerifying, StateError, StateIdle},
	StateVerifying:  {StateSuccess, StateError, StateIdle},
	StateError:      {StateConnecting, StateIdle},
	StateSuccess:    {StateIdle},
}

// CanTransition reports whether moving from one state to another is allowed.
// Pending states may fall back to idle when the attempt is cancelled.
func CanTransition(from, to FlowState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
