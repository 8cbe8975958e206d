package bus

import (
	"encoding/json"
	"strings"
	"testing"

	"streamkit/internal/node"
	"streamkit/internal/packet"
)

func TestEmitterWrapsEventWithTypeID(t *testing.T) {
	tx := make(chan node.TelemetryEvent, 4)
	e := NewEmitter("n1", "session-1", tx)

	if !e.Emit("vad.speech_start", map[string]any{"energy": 0.8}) {
		t.Fatalf("Emit returned false with room in the channel")
	}

	event := <-tx
	if event.NodeID != "n1" || event.SessionID != "session-1" {
		t.Fatalf("envelope = %+v, want node n1 session session-1", event)
	}
	if event.Packet.TypeID != node.TelemetryTypeID {
		t.Fatalf("TypeID = %q, want %q", event.Packet.TypeID, node.TelemetryTypeID)
	}
	eventType, ok := event.EventType()
	if !ok || eventType != "vad.speech_start" {
		t.Fatalf("event_type = %q (%v), want vad.speech_start", eventType, ok)
	}
}

func TestEmitterNilChannelIsNoop(t *testing.T) {
	e := NewEmitter("n1", "", nil)
	if e.Emit("anything", nil) {
		t.Fatalf("Emit on a nil channel returned true")
	}
}

func TestEmitterRateLimitsPerEventType(t *testing.T) {
	tx := make(chan node.TelemetryEvent, 1024)
	e := NewEmitter("n1", "", tx)

	var accepted int
	for i := 0; i < 500; i++ {
		if e.Emit("spammy.event", nil) {
			accepted++
		}
	}
	// The limiter allows a burst of defaultEventsPerSecond, then refuses.
	if accepted > defaultEventsPerSecond+5 {
		t.Fatalf("accepted %d events in a burst, want <= ~%d", accepted, defaultEventsPerSecond)
	}
	if accepted == 0 {
		t.Fatalf("rate limiter rejected everything")
	}

	// A different event type owns its own limiter and is unaffected.
	if !e.Emit("quiet.event", nil) {
		t.Fatalf("unrelated event type was rate limited")
	}
}

func TestEmitterHealthReportsDropCounts(t *testing.T) {
	tx := make(chan node.TelemetryEvent, 2048)
	e := NewEmitter("n1", "", tx)
	e.SetRateLimit("spammy.event", 1)

	var rejected int
	for i := 0; i < 10; i++ {
		if !e.Emit("spammy.event", nil) {
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatalf("expected some rate-limit rejections")
	}

	if !e.MaybeEmitHealth() {
		t.Fatalf("MaybeEmitHealth did not report pending drops")
	}

	var health *node.TelemetryEvent
	for len(tx) > 0 {
		ev := <-tx
		if et, _ := ev.EventType(); et == "telemetry.health" {
			health = &ev
		}
	}
	if health == nil {
		t.Fatalf("no telemetry.health event emitted")
	}
	var payload map[string]any
	if err := json.Unmarshal(health.Packet.Data, &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload["dropped_due_to_rate_limit"].(float64) != float64(rejected) {
		t.Fatalf("dropped_due_to_rate_limit = %v, want %d", payload["dropped_due_to_rate_limit"], rejected)
	}
}

func redactedEvent(t *testing.T, data map[string]any, maxChars int) map[string]any {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	event := node.TelemetryEvent{
		NodeID: "n1",
		Packet: packet.CustomPacketData{TypeID: node.TelemetryTypeID, Encoding: packet.EncodingJSON, Data: raw},
	}
	out := RedactTelemetry(event, maxChars)
	var decoded map[string]any
	if err := json.Unmarshal(out.Packet.Data, &decoded); err != nil {
		t.Fatalf("unmarshal redacted: %v", err)
	}
	return decoded
}

func TestRedactTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 500)
	decoded := redactedEvent(t, map[string]any{
		"text":  long,
		"short": "ok",
		"nested": map[string]any{
			"inner": long,
		},
		"list": []any{long, "ok"},
	}, 100)

	want := strings.Repeat("x", 100) + "…[truncated]"
	if decoded["text"] != want {
		t.Fatalf("top-level string not truncated: %q", decoded["text"])
	}
	if decoded["short"] != "ok" {
		t.Fatalf("short string modified: %q", decoded["short"])
	}
	if decoded["nested"].(map[string]any)["inner"] != want {
		t.Fatalf("nested string not truncated")
	}
	list := decoded["list"].([]any)
	if list[0] != want || list[1] != "ok" {
		t.Fatalf("list strings mishandled: %v", list)
	}
}

func TestRedactDisabledPassesThrough(t *testing.T) {
	long := strings.Repeat("y", 500)
	decoded := redactedEvent(t, map[string]any{"text": long}, 0)
	if decoded["text"] != long {
		t.Fatalf("redaction ran with maxChars=0")
	}
}

func TestStatsTrackerFlushesOnPacketThreshold(t *testing.T) {
	tx := make(chan node.StatsUpdate, 4)
	tracker := NewStatsTracker("n1", tx)

	// Below the threshold nothing flushes.
	tracker.RecordReceived(statsFlushPackets - 1)
	select {
	case u := <-tx:
		t.Fatalf("premature flush: %+v", u)
	default:
	}

	// Crossing it does.
	tracker.RecordSent(1)
	select {
	case u := <-tx:
		if u.NodeID != "n1" || u.PacketsIn != statsFlushPackets-1 || u.PacketsOut != 1 {
			t.Fatalf("flushed update = %+v", u)
		}
	default:
		t.Fatalf("no flush after crossing the packet threshold")
	}
}

func TestStatsTrackerExplicitFlush(t *testing.T) {
	tx := make(chan node.StatsUpdate, 1)
	tracker := NewStatsTracker("n1", tx)
	tracker.RecordReceived(3)
	tracker.RecordErrored(2)
	if !tracker.Flush() {
		t.Fatalf("Flush returned false with room in the channel")
	}
	u := <-tx
	if u.PacketsIn != 3 {
		t.Fatalf("PacketsIn = %d, want 3", u.PacketsIn)
	}
	if u.Custom["errored"] != 2 {
		t.Fatalf("errored counter = %v, want 2", u.Custom["errored"])
	}
}
