package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// vadEventTypeID is the wire type_id a VAD node tags its Custom packets
// with; TelemetryTap special-cases it so "vad.*" filters still match events
// that forgot to prefix their own event_type.
const vadEventTypeID = "plugin::native::vad/vad-event@1"

// TelemetryTapConfig controls which packets TelemetryTap converts to
// telemetry events, and at what rate.
type TelemetryTapConfig struct {
	// PacketTypes selects which Packet kinds get tapped: "audio", "text",
	// "transcription", "custom", "binary". Default: transcription, custom.
	PacketTypes []string `json:"packet_types"`
	// EventTypeFilter restricts Custom-packet taps to event_type values
	// matching one of these glob-style ("vad.*") prefixes. Empty matches all.
	EventTypeFilter []string `json:"event_type_filter"`
	// MaxEventsPerSec rate-limits emission per event type.
	MaxEventsPerSec int `json:"max_events_per_sec"`
	// AudioSampleIntervalMs is how often accumulated audio samples are
	// reduced to an RMS/peak telemetry event; 0 selects the 1000 ms default
	// and a negative value disables audio-level events.
	AudioSampleIntervalMs int `json:"audio_sample_interval_ms"`
}

func (c *TelemetryTapConfig) setDefaults() {
	if len(c.PacketTypes) == 0 {
		c.PacketTypes = []string{"transcription", "custom"}
	}
	if c.MaxEventsPerSec == 0 {
		c.MaxEventsPerSec = 100
	}
	if c.AudioSampleIntervalMs == 0 {
		c.AudioSampleIntervalMs = 1000
	}
}

func (c *TelemetryTapConfig) hasPacketType(name string) bool {
	for _, t := range c.PacketTypes {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func matchesEventTypeFilter(filter []string, eventType string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, pattern := range filter {
		switch {
		case strings.HasSuffix(pattern, ".*"):
			if strings.HasPrefix(eventType, pattern[:len(pattern)-2]) {
				return true
			}
		case strings.HasSuffix(pattern, "*"):
			if strings.HasPrefix(eventType, pattern[:len(pattern)-1]) {
				return true
			}
		default:
			if eventType == pattern {
				return true
			}
		}
	}
	return false
}

func truncatePreview(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

func calculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

func calculatePeak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// TelemetryTap observes packets flowing through and emits telemetry events
// describing them, while forwarding every packet unchanged downstream — it
// is the pacer/passthrough pattern with a telemetry side effect, so VAD and
// transcription nodes don't need to know about telemetry at all.
type TelemetryTap struct {
	node.BaseNode
	cfg TelemetryTapConfig
}

// NewTelemetryTap constructs a TelemetryTap node from raw JSON params.
func NewTelemetryTap(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg TelemetryTapConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("telemetry_tap: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &TelemetryTap{cfg: cfg}, nil
}

func (t *TelemetryTap) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (t *TelemetryTap) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (t *TelemetryTap) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}

	emitter := bus.NewEmitter(nodeName, nctx.SessionID, nctx.TelemetryTx)
	emitter.SetRateLimit("stt.result", t.cfg.MaxEventsPerSec)
	emitter.SetRateLimit("audio.level", t.cfg.MaxEventsPerSec)
	emitter.SetRateLimit("text.received", t.cfg.MaxEventsPerSec)
	emitter.SetRateLimit("binary.received", t.cfg.MaxEventsPerSec)

	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var audioAcc []float32
	var audioRate uint32
	var audioChannels uint16
	lastAudioEmit := time.Now()
	audioInterval := time.Duration(t.cfg.AudioSampleIntervalMs) * time.Millisecond

	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}

		t.tap(pkt, emitter, &audioAcc, &audioRate, &audioChannels, &lastAudioEmit, audioInterval)
		emitter.MaybeEmitHealth()

		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
	}
}

func (t *TelemetryTap) tap(
	pkt packet.Packet,
	emitter *bus.Emitter,
	audioAcc *[]float32,
	audioRate *uint32,
	audioChannels *uint16,
	lastAudioEmit *time.Time,
	audioInterval time.Duration,
) {
	switch pkt.Kind() {
	case packet.KindTranscription:
		if !t.cfg.hasPacketType("transcription") {
			return
		}
		transcription, _ := pkt.Transcription()
		segments := make([]map[string]any, 0, len(transcription.Segments))
		for _, seg := range transcription.Segments {
			segments = append(segments, map[string]any{
				"text":          seg.Text,
				"start_time_ms": seg.StartTimeMs,
				"end_time_ms":   seg.EndTimeMs,
				"confidence":    seg.Confidence,
			})
		}
		emitter.Emit("stt.result", map[string]any{
			"text_preview":  truncatePreview(transcription.Text, 100),
			"segment_count": len(segments),
			"segments":      segments,
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

	case packet.KindAudio:
		if !t.cfg.hasPacketType("audio") || t.cfg.AudioSampleIntervalMs <= 0 {
			return
		}
		frame, _ := pkt.Audio()
		*audioAcc = append(*audioAcc, frame.Samples()...)
		*audioRate = frame.SampleRate
		*audioChannels = frame.Channels
		if time.Since(*lastAudioEmit) >= audioInterval {
			emitter.Emit("audio.level", map[string]any{
				"rms":          calculateRMS(*audioAcc),
				"peak":         calculatePeak(*audioAcc),
				"sample_count": len(*audioAcc),
				"sample_rate":  *audioRate,
				"channels":     *audioChannels,
			})
			*audioAcc = (*audioAcc)[:0]
			*lastAudioEmit = time.Now()
		}

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
	}
}
