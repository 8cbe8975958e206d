package bus

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"streamkit/internal/node"
)

// healthInterval is how often an emitter reports its drop counters as a
// self-event.
const healthInterval = 5 * time.Second

// defaultEventsPerSecond is the per-event-type rate limit default.
const defaultEventsPerSecond = 100

// Emitter is the per-node helper that owns rate limiting and drop
// accounting for one node's telemetry_tx. Nodes construct one per run and call Emit for each
// structured event; the engine wiring only needs to forward TelemetryEvent
// values onto the telemetry bus.
type Emitter struct {
	nodeID    string
	sessionID string
	tx        chan<- node.TelemetryEvent

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	droppedFull      atomic.Uint64
	droppedRateLimit atomic.Uint64
	lastHealthEmit   time.Time
}

// NewEmitter builds an Emitter for nodeID. tx may be nil, in which case
// every Emit call is a no-op (telemetry disabled for this context).
func NewEmitter(nodeID, sessionID string, tx chan<- node.TelemetryEvent) *Emitter {
	return &Emitter{
		nodeID:         nodeID,
		sessionID:      sessionID,
		tx:             tx,
		limiters:       make(map[string]*rate.Limiter),
		lastHealthEmit: time.Now(),
	}
}

func (e *Emitter) limiterFor(eventType string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[eventType]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultEventsPerSecond), defaultEventsPerSecond)
		e.limiters[eventType] = l
	}
	return l
}

// Emit best-effort sends a structured event of eventType. It returns false
// if the event was dropped (telemetry disabled, rate-limited, or the
// channel was full) and true if it was queued.
func (e *Emitter) Emit(eventType string, data map[string]any) bool {
	if e.tx == nil {
		return false
	}
	if !e.limiterFor(eventType).Allow() {
		e.droppedRateLimit.Add(1)
		return false
	}

	if data == nil {
		data = make(map[string]any)
	}
	data["event_type"] = eventType
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}

	event := node.TelemetryEvent{
		SessionID: e.sessionID,
		NodeID:    e.nodeID,
		Packet:    packetFor(payload),
	}

	select {
	case e.tx <- event:
		return true
	default:
		e.droppedFull.Add(1)
		return false
	}
}

// MaybeEmitHealth reports a "telemetry.health" self-event if the health
// interval has elapsed or there are pending drops to report, resetting the
// drop counters on a successful emission. Call this periodically (e.g. from
// a node's pacing loop or a ticker) — it is not self-scheduling.
func (e *Emitter) MaybeEmitHealth() bool {
	droppedFull := e.droppedFull.Load()
	droppedRateLimit := e.droppedRateLimit.Load()
	hasDrops := droppedFull > 0 || droppedRateLimit > 0
	intervalPassed := time.Since(e.lastHealthEmit) >= healthInterval
	if !hasDrops && !intervalPassed {
		return false
	}
	e.lastHealthEmit = time.Now()
	emitted := e.Emit("telemetry.health", map[string]any{
		"dropped_due_to_full":       droppedFull,
		"dropped_due_to_rate_limit": droppedRateLimit,
	})
	if emitted {
		e.droppedFull.Store(0)
		e.droppedRateLimit.Store(0)
	}
	return emitted
}

// SetRateLimit overrides the events-per-second limit for a specific event
// type, replacing its limiter.
func (e *Emitter) SetRateLimit(eventType string, perSecond int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiters[eventType] = rate.NewLimiter(rate.Limit(perSecond), perSecond)
}
