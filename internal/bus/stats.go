package bus

import (
	"sync/atomic"
	"time"

	"streamkit/internal/node"
)

// statsFlushInterval and statsFlushPackets are the coalescing thresholds a
// node's stats tracker uses before pushing an update upstream: an update
// goes out once 10 s have elapsed or 1000 packets have accumulated,
// whichever comes first.
const (
	statsFlushInterval = 10 * time.Second
	statsFlushPackets  = 1000
)

// StatsTracker accumulates a node's in-process counters and flushes a
// coalesced StatsUpdate to statsTx once the interval or packet-count
// threshold is reached, so hot-path code never sends one message per
// packet.
type StatsTracker struct {
	nodeID  string
	statsTx chan<- node.StatsUpdate

	received  atomic.Uint64
	sent      atomic.Uint64
	discarded atomic.Uint64
	errored   atomic.Uint64

	lastFlush  time.Time
	sinceFlush atomic.Uint64
}

// NewStatsTracker builds a tracker for nodeID. statsTx may be nil, in which
// case RecordX calls still update local counters but Maybe Flush never
// sends anything.
func NewStatsTracker(nodeID string, statsTx chan<- node.StatsUpdate) *StatsTracker {
	return &StatsTracker{nodeID: nodeID, statsTx: statsTx, lastFlush: time.Now()}
}

func (t *StatsTracker) RecordReceived(n uint64)  { t.received.Add(n); t.touch(n) }
func (t *StatsTracker) RecordSent(n uint64)      { t.sent.Add(n); t.touch(n) }
func (t *StatsTracker) RecordDiscarded(n uint64) { t.discarded.Add(n); t.touch(n) }
func (t *StatsTracker) RecordErrored(n uint64)   { t.errored.Add(n); t.touch(n) }

func (t *StatsTracker) touch(n uint64) {
	t.sinceFlush.Add(n)
	t.MaybeFlush()
}

// MaybeFlush flushes a StatsUpdate if the packet-count or interval
// threshold has been crossed since the last flush, resetting the
// since-flush counter on success. Safe to call opportunistically from
// anywhere in a node's loop.
func (t *StatsTracker) MaybeFlush() bool {
	if t.sinceFlush.Load() < statsFlushPackets && time.Since(t.lastFlush) < statsFlushInterval {
		return false
	}
	return t.Flush()
}

// Flush unconditionally sends the current counters upstream.
func (t *StatsTracker) Flush() bool {
	t.lastFlush = time.Now()
	t.sinceFlush.Store(0)
	if t.statsTx == nil {
		return false
	}
	update := node.StatsUpdate{
		NodeID:     t.nodeID,
		PacketsIn:  t.received.Load(),
		PacketsOut: t.sent.Load(),
		DroppedOut: t.discarded.Load(),
		Timestamp:  time.Now(),
	}
	update.Custom = map[string]float64{"errored": float64(t.errored.Load())}
	select {
	case t.statsTx <- update:
		return true
	default:
		return false
	}
}
