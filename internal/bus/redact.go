package bus

import (
	"encoding/json"

	"streamkit/internal/node"
	"streamkit/internal/packet"
)

func packetFor(data json.RawMessage) packet.CustomPacketData {
	return packet.CustomPacketData{
		TypeID:   node.TelemetryTypeID,
		Encoding: packet.EncodingJSON,
		Data:     data,
	}
}

// DefaultMaxTextChars is the server redaction truncation default.
const DefaultMaxTextChars = 100

// RedactTelemetry returns a copy of event with every string value in its
// JSON payload longer than maxChars truncated to "prefix…[truncated]",
// so oversized payloads never reach outside subscribers. maxChars <= 0 disables
// truncation. Non-JSON-object payloads (already unusual for a telemetry
// event) pass through unmodified.
func RedactTelemetry(event node.TelemetryEvent, maxChars int) node.TelemetryEvent {
	if maxChars <= 0 {
		return event
	}
	var decoded map[string]any
	if err := json.Unmarshal(event.Packet.Data, &decoded); err != nil {
		return event
	}
	redactValue(decoded, maxChars)
	redacted, err := json.Marshal(decoded)
	if err != nil {
		return event
	}
	event.Packet.Data = redacted
	return event
}

func redactValue(m map[string]any, maxChars int) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			m[k] = truncateString(val, maxChars)
		case map[string]any:
			redactValue(val, maxChars)
		case []any:
			for i, item := range val {
				if s, ok := item.(string); ok {
					val[i] = truncateString(s, maxChars)
				} else if nested, ok := item.(map[string]any); ok {
					redactValue(nested, maxChars)
				}
			}
		}
	}
}

func truncateString(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "…[truncated]"
}
