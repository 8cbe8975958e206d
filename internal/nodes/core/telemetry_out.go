package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// TelemetryOutConfig controls which packets TelemetryOut forwards to the
// session telemetry bus.
type TelemetryOutConfig struct {
	PacketTypes     []string `json:"packet_types"`
	EventTypeFilter []string `json:"event_type_filter"`
	MaxEventsPerSec int      `json:"max_events_per_sec"`
}

func (c *TelemetryOutConfig) setDefaults() {
	if len(c.PacketTypes) == 0 {
		c.PacketTypes = []string{"transcription", "custom"}
	}
	if c.MaxEventsPerSec == 0 {
		c.MaxEventsPerSec = 100
	}
}

func (c *TelemetryOutConfig) hasPacketType(name string) bool {
	for _, t := range c.PacketTypes {
		if t == name {
			return true
		}
	}
	return false
}

// TelemetryOut is a terminal node (no output pins) that converts the
// packets it receives into telemetry events on the session bus; it is the
// sink half of TelemetryTap, used for branches that exist purely to surface
// data over the WebSocket telemetry channel.
type TelemetryOut struct {
	node.BaseNode
	cfg TelemetryOutConfig
}

// NewTelemetryOut constructs a TelemetryOut node from raw JSON params.
func NewTelemetryOut(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg TelemetryOutConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("telemetry_out: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &TelemetryOut{cfg: cfg}, nil
}

func (t *TelemetryOut) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (t *TelemetryOut) OutputPins() []pin.OutputPin { return nil }

func (t *TelemetryOut) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}

	emitter := bus.NewEmitter(nodeName, nctx.SessionID, nctx.TelemetryTx)
	emitter.SetRateLimit("stt.result", t.cfg.MaxEventsPerSec)
	emitter.SetRateLimit("text.received", t.cfg.MaxEventsPerSec)
	emitter.SetRateLimit("binary.received", t.cfg.MaxEventsPerSec)

	node.EmitState(nctx.StateTx, nodeName, node.Running())

	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		t.forward(pkt, emitter)
		emitter.MaybeEmitHealth()
	}
}

func (t *TelemetryOut) forward(pkt packet.Packet, emitter *bus.Emitter) {
	switch pkt.Kind() {
	case packet.KindTranscription:
		if !t.cfg.hasPacketType("transcription") {
			return
		}
		transcription, _ := pkt.Transcription()
		emitter.Emit("stt.result", map[string]any{
			"text_preview":  truncatePreview(transcription.Text, 100),
			"text_length":   len(transcription.Text),
			"segment_count": len(transcription.Segments),
			"language":      transcription.Language,
		})

	case packet.KindCustom:
		if !t.cfg.hasPacketType("custom") {
			return
		}
		custom, _ := pkt.Custom()
		var decoded map[string]any
		_ = json.Unmarshal(custom.Data, &decoded)
		eventType, _ := decoded["event_type"].(string)
		if eventType == "" {
			eventType = "custom.unknown"
		}
		if custom.TypeID == vadEventTypeID && !strings.HasPrefix(eventType, "vad.") {
			eventType = "vad." + eventType
		}
		if !matchesEventTypeFilter(t.cfg.EventTypeFilter, eventType) {
			return
		}
		if decoded == nil {
			decoded = make(map[string]any)
		}
		decoded["source_type_id"] = custom.TypeID
		emitter.Emit(eventType, decoded)

	case packet.KindText:
		if !t.cfg.hasPacketType("text") {
			return
		}
		text, _ := pkt.Text()
		emitter.Emit("text.received", map[string]any{
			"text_preview": truncatePreview(text, 100),
			"length":       len(text),
		})

	case packet.KindBinary:
		if !t.cfg.hasPacketType("binary") {
			return
		}
		data, _, metadata, _ := pkt.Binary()
		emitter.Emit("binary.received", map[string]any{
			"size_bytes":   len(data),
			"has_metadata": metadata != nil,
		})

	case packet.KindAudio:
		// Intentionally no audio-level telemetry here to avoid noise; use
		// TelemetryTap if periodic level reporting is needed.
	}
}
