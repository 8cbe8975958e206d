package node

import "time"

// StopReason records why a node entered the Stopped state.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopInputClosed
	StopOutputClosed
	StopShutdown
	StopNoInputs
	StopUnknown
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopInputClosed:
		return "input_closed"
	case StopOutputClosed:
		return "output_closed"
	case StopShutdown:
		return "shutdown"
	case StopNoInputs:
		return "no_inputs"
	default:
		return "unknown"
	}
}

// StateKind identifies which NodeState variant a value holds.
type StateKind int

const (
	StateInitializing StateKind = iota
	StateReady
	StateRunning
	StateRecovering
	StateDegraded
	StateFailed
	StateStopped
)

func (k StateKind) String() string {
	switch k {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NodeState is a node's reported lifecycle state. Recovering and
// Degraded carry a human-readable reason plus optional structured details;
// Failed carries a reason; Stopped carries a StopReason.
type NodeState struct {
	Kind       StateKind
	Reason     string
	Details    map[string]any
	StopReason StopReason
}

func Initializing() NodeState { return NodeState{Kind: StateInitializing} }
func Ready() NodeState        { return NodeState{Kind: StateReady} }
func Running() NodeState      { return NodeState{Kind: StateRunning} }

func Recovering(reason string, details map[string]any) NodeState {
	return NodeState{Kind: StateRecovering, Reason: reason, Details: details}
}

func Degraded(reason string, details map[string]any) NodeState {
	return NodeState{Kind: StateDegraded, Reason: reason, Details: details}
}

func Failed(reason string) NodeState {
	return NodeState{Kind: StateFailed, Reason: reason}
}

func Stopped(reason StopReason) NodeState {
	return NodeState{Kind: StateStopped, StopReason: reason}
}

// StateUpdate is a timestamped state transition reported by a node.
type StateUpdate struct {
	NodeID    string
	State     NodeState
	Timestamp time.Time
}

// NewStateUpdate stamps a state transition with the current time.
func NewStateUpdate(nodeID string, state NodeState) StateUpdate {
	return StateUpdate{NodeID: nodeID, State: state, Timestamp: time.Now()}
}

// EmitState sends a state update on a best-effort basis; a full or closed
// channel silently drops it; monitoring must never block the hot path.
func EmitState(stateTx chan<- StateUpdate, nodeID string, state NodeState) {
	if stateTx == nil {
		return
	}
	select {
	case stateTx <- NewStateUpdate(nodeID, state):
	default:
	}
}

// EmitRecoveringWithRetry is a convenience helper for nodes implementing
// retry logic: attempt/max_attempts land in Details for monitoring.
func EmitRecoveringWithRetry(stateTx chan<- StateUpdate, nodeID, reason string, attempt, maxAttempts int) {
	EmitState(stateTx, nodeID, Recovering(reason, map[string]any{
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	}))
}
