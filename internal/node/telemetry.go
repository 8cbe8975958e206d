package node

import (
	"encoding/json"

	"streamkit/internal/packet"
)

// TelemetryTypeID is the wire type_id every telemetry event is wrapped in,
// kept wire-compatible with the packet system for future "telemetry as
// track" routing.
const TelemetryTypeID = "core::telemetry/event@1"

// TelemetryEvent is a structured, best-effort observability event emitted by
// a node. The envelope fields (SessionID, NodeID) live outside the wrapped
// packet; event_type/correlation_id/turn_id live inside Data.
type TelemetryEvent struct {
	SessionID string // empty if not session-scoped
	NodeID    string
	Packet    packet.CustomPacketData
}

// EventType extracts the event_type field from the wrapped payload, if set.
func (e TelemetryEvent) EventType() (string, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(e.Packet.Data, &decoded); err != nil {
		return "", false
	}
	v, ok := decoded["event_type"].(string)
	return v, ok
}
