package pin

import "github.com/google/uuid"

// ConnectionMode governs how a distributor treats a slow or stalled
// consumer on a given outbound edge.
type ConnectionMode int

const (
	// Reliable applies synchronous backpressure: a full consumer channel
	// stalls the distributor until it drains.
	Reliable ConnectionMode = iota
	// BestEffort coalesces into a single pending slot and drops the oldest
	// pending packet rather than block.
	BestEffort
)

func (m ConnectionMode) String() string {
	if m == Reliable {
		return "reliable"
	}
	return "best_effort"
}

// ConnectionId uniquely identifies one edge of a distributor's fan-out, so
// that Disconnect can target a specific outbound edge even when several
// edges share the same (node, pin) destination.
type ConnectionId string

// NewConnectionId mints a fresh, random connection identifier.
func NewConnectionId() ConnectionId {
	return ConnectionId(uuid.NewString())
}

// Connection is the tuple describing one edge in the graph.
type Connection struct {
	FromNode string
	FromPin  string
	ToNode   string
	ToPin    string
	Mode     ConnectionMode
}
