package audio

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

const (
	opusMaxPacketBytes = 1275 // RFC 6716 max Opus packet size
	opusDefaultBitrate = 32000
)

// OpusEncodeConfig configures an OpusEncode node.
type OpusEncodeConfig struct {
	SampleRate int  `json:"sample_rate"`
	Channels   int  `json:"channels"`
	BitrateBps int  `json:"bitrate_bps"`
	DTX        bool `json:"dtx"`
	InBandFEC  bool `json:"in_band_fec"`
}

func (c *OpusEncodeConfig) setDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.BitrateBps == 0 {
		c.BitrateBps = opusDefaultBitrate
	}
}

// OpusEncode compresses raw f32 Audio packets into Opus-encoded Binary
// packets, one packet per frame, with VoIP tuning (bitrate, DTX, in-band
// FEC) applied at construction.
type OpusEncode struct {
	node.BaseNode
	cfg OpusEncodeConfig
}

// NewOpusEncode constructs an OpusEncode node from raw JSON params.
func NewOpusEncode(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg OpusEncodeConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("opus_encode: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &OpusEncode{cfg: cfg}, nil
}

func (n *OpusEncode) InputPins() []pin.InputPin {
	return []pin.InputPin{{
		Name: "in",
		AcceptsTypes: []packet.PacketType{
			packet.RawAudioType(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), packet.SampleFormatF32),
		},
		Cardinality: pin.One(),
	}}
}

func (n *OpusEncode) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.OpusAudioType(), Cardinality: pin.Broadcast()}}
}

func (n *OpusEncode) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	enc, err := opus.NewEncoder(n.cfg.SampleRate, n.cfg.Channels, opus.AppVoIP)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create opus encoder", err)
	}
	if err := enc.SetBitrate(n.cfg.BitrateBps); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "configure opus bitrate", err)
	}
	_ = enc.SetDTX(n.cfg.DTX)
	_ = enc.SetInBandFEC(n.cfg.InBandFEC)

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	buf := make([]byte, opusMaxPacketBytes)
	var sent uint64
	var bytesSent uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		frame, isAudio := pkt.Audio()
		if !isAudio {
			continue
		}

		pcm := f32ToInt16(frame.Samples())
		n2, err := enc.Encode(pcm, buf)
		frame.Release()
		if err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Degraded("encode failed", map[string]any{"error": err.Error()}))
			continue
		}

		encoded := make([]byte, n2)
		copy(encoded, buf[:n2])
		out := packet.NewBinaryPacket(encoded, nil, nil)
		if err := nctx.Output.Send(ctx, "out", out); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		bytesSent += uint64(n2)
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, BytesOut: bytesSent})
		}
	}
}

// OpusDecodeConfig configures an OpusDecode node.
type OpusDecodeConfig struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

func (c *OpusDecodeConfig) setDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
}

// OpusDecode expands Opus-encoded Binary packets back into raw f32 Audio
// packets, running packet-loss concealment when asked to decode a nil
// payload, so a lossy transport upstream degrades gracefully.
type OpusDecode struct {
	node.BaseNode
	cfg OpusDecodeConfig
}

// NewOpusDecode constructs an OpusDecode node from raw JSON params.
func NewOpusDecode(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg OpusDecodeConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("opus_decode: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &OpusDecode{cfg: cfg}, nil
}

func (n *OpusDecode) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.OpusAudioType()}, Cardinality: pin.One()}}
}

func (n *OpusDecode) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{
		Name:         "out",
		ProducesType: packet.RawAudioType(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), packet.SampleFormatF32),
		Cardinality:  pin.Broadcast(),
	}}
}

func (n *OpusDecode) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	dec, err := opus.NewDecoder(n.cfg.SampleRate, n.cfg.Channels)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create opus decoder", err)
	}

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	frameSize := n.cfg.SampleRate / 50 * n.cfg.Channels // 20ms frames
	pcm := make([]int16, frameSize)
	var sent uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		data, _, _, isBinary := pkt.Binary()
		if !isBinary {
			continue
		}

		var n2 int
		var decErr error
		if len(data) == 0 {
			decErr = dec.DecodePLC(pcm)
			n2 = len(pcm)
		} else {
			n2, decErr = dec.Decode(data, pcm)
		}
		if decErr != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Degraded("decode failed", map[string]any{"error": decErr.Error()}))
			continue
		}

		samples := int16ToF32(pcm[:n2])
		frame := packet.NewAudioFrame(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), samples)
		if err := nctx.Output.Send(ctx, "out", packet.NewAudioPacket(frame)); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent})
		}
	}
}

func f32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

func int16ToF32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}
