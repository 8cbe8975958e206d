package node

import "time"

// StatsUpdate is a throttled counter-delta report a node sends upstream for
// monitoring. Nodes are expected to coalesce these (e.g. every few hundred
// milliseconds or every N packets) rather than emit one per packet.
type StatsUpdate struct {
	NodeID     string
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64
	DroppedIn  uint64
	DroppedOut uint64
	Custom     map[string]float64
	Timestamp  time.Time
}

// EmitStats sends a stats update on a best-effort basis.
func EmitStats(statsTx chan<- StatsUpdate, update StatsUpdate) {
	if statsTx == nil {
		return
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	select {
	case statsTx <- update:
	default:
	}
}
