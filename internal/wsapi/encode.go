package wsapi

import (
	"fmt"

	"streamkit/internal/bus"
	"streamkit/internal/engine"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

func encodeState(nodeID string, s node.NodeState) NodeState {
	out := NodeState{
		NodeID:  nodeID,
		Kind:    s.Kind.String(),
		Reason:  s.Reason,
		Details: s.Details,
	}
	if s.Kind == node.StateStopped {
		out.StopReason = s.StopReason.String()
	}
	return out
}

func encodeStates(states map[string]node.NodeState) map[string]NodeState {
	out := make(map[string]NodeState, len(states))
	for id, s := range states {
		enc := encodeState(id, s)
		enc.NodeID = "" // the map key already names the node
		out[id] = enc
	}
	return out
}

func encodeStats(u node.StatsUpdate) NodeStats {
	return NodeStats{
		NodeID:     u.NodeID,
		PacketsIn:  u.PacketsIn,
		PacketsOut: u.PacketsOut,
		BytesIn:    u.BytesIn,
		BytesOut:   u.BytesOut,
		DroppedIn:  u.DroppedIn,
		DroppedOut: u.DroppedOut,
		Custom:     u.Custom,
	}
}

func encodeStatsMap(stats map[string]node.StatsUpdate) map[string]NodeStats {
	out := make(map[string]NodeStats, len(stats))
	for id, u := range stats {
		enc := encodeStats(u)
		enc.NodeID = ""
		out[id] = enc
	}
	return out
}

func encodeConnection(id pin.ConnectionId, c pin.Connection) ConnectionInfo {
	return ConnectionInfo{
		ID:       string(id),
		FromNode: c.FromNode,
		FromPin:  c.FromPin,
		ToNode:   c.ToNode,
		ToPin:    c.ToPin,
		Mode:     c.Mode.String(),
	}
}

func encodeConnections(records []engine.ConnectionRecord) []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(records))
	for _, r := range records {
		out = append(out, encodeConnection(r.ID, r.Connection))
	}
	return out
}

func encodeCardinality(info *PinInfo, c pin.Cardinality) {
	switch {
	case c.IsOne():
		info.Cardinality = "one"
	case c.IsBroadcast():
		info.Cardinality = "broadcast"
	default:
		prefix, _ := c.IsDynamic()
		info.Cardinality = "dynamic"
		info.Prefix = prefix
	}
}

func encodePacketType(t packet.PacketType) string {
	switch t.Kind {
	case packet.TypeRawAudio:
		format := "f32"
		if t.RawAudio.SampleFormat == packet.SampleFormatS16LE {
			format = "s16le"
		}
		return fmt.Sprintf("raw_audio/%d/%d/%s", t.RawAudio.SampleRate, t.RawAudio.Channels, format)
	case packet.TypeCustom:
		return "custom/" + t.CustomID
	default:
		return t.Kind.TypeID()
	}
}

func encodeInputPin(p pin.InputPin) PinInfo {
	info := PinInfo{Name: p.Name}
	for _, t := range p.AcceptsTypes {
		info.Types = append(info.Types, encodePacketType(t))
	}
	encodeCardinality(&info, p.Cardinality)
	return info
}

func encodeOutputPin(p pin.OutputPin) PinInfo {
	info := PinInfo{Name: p.Name, Type: encodePacketType(p.ProducesType)}
	encodeCardinality(&info, p.Cardinality)
	return info
}

func encodeDefinition(d registry.Definition) Definition {
	out := Definition{
		Kind:          d.Kind,
		Description:   d.Description,
		ParamSchema:   d.ParamSchema,
		Categories:    d.Categories,
		Bidirectional: d.Bidirectional,
	}
	for _, p := range d.Inputs {
		out.Inputs = append(out.Inputs, encodeInputPin(p))
	}
	for _, p := range d.Outputs {
		out.Outputs = append(out.Outputs, encodeOutputPin(p))
	}
	return out
}

func encodeDefinitions(defs []registry.Definition) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, encodeDefinition(d))
	}
	return out
}

func eventKindString(k bus.EventKind) string {
	switch k {
	case bus.EventNodeAdded:
		return "node_added"
	case bus.EventNodeRemoved:
		return "node_removed"
	case bus.EventConnectionAdded:
		return "connection_added"
	case bus.EventConnectionRemoved:
		return "connection_removed"
	case bus.EventNodeStateChanged:
		return "node_state_changed"
	case bus.EventNodeStatsUpdated:
		return "node_stats_updated"
	case bus.EventNodeParamsChanged:
		return "node_params_changed"
	case bus.EventSessionCreated:
		return "session_created"
	case bus.EventSessionDestroyed:
		return "session_destroyed"
	default:
		return "unknown"
	}
}

func encodeEvent(e bus.Event) EventInfo {
	info := EventInfo{
		Kind:         eventKindString(e.Kind),
		NodeID:       e.NodeID,
		NodeKind:     e.NodeKind,
		ConnectionID: string(e.ConnectionID),
		Reason:       e.Reason,
		SessionID:    e.SessionID,
	}
	if e.ConnectionID != "" {
		conn := encodeConnection(e.ConnectionID, e.Connection)
		info.Connection = &conn
	}
	return info
}

func encodeTelemetry(e node.TelemetryEvent) TelemetryInfo {
	return TelemetryInfo{
		SessionID: e.SessionID,
		NodeID:    e.NodeID,
		TypeID:    e.Packet.TypeID,
		Data:      e.Packet.Data,
	}
}
