// Package audio collects the audio-domain ProcessorNode implementations:
// capture/playback device I/O, Opus codec nodes, and the DSP-backed VAD/AGC/
// noise-gate nodes that wrap internal/dsp for use in a running pipeline.
package audio

import (
	"context"
	"encoding/json"
	"fmt"

	"streamkit/internal/dsp"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// VADConfig configures a VAD gate node.
type VADConfig struct {
	// ThresholdLevel is a [0,100] sensitivity; higher suppresses more.
	ThresholdLevel int `json:"threshold_level"`
	// HangoverFrames is decoded from params but not applied: the detector
	// always uses the dsp package's default hangover length.
	HangoverFrames int `json:"hangover_frames"`
}

// VAD gates Audio packets by voice activity: frames classified as silence
// are dropped rather than forwarded, so downstream nodes (encoders,
// transcribers) never see dead air.
type VAD struct {
	node.BaseNode
	cfg VADConfig
	vad *dsp.VAD
}

// NewVAD constructs a VAD node from raw JSON params.
func NewVAD(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg VADConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("vad: invalid params: %w", err)
		}
	}
	v := dsp.NewVAD()
	if cfg.ThresholdLevel != 0 {
		v.SetThreshold(cfg.ThresholdLevel)
	}
	return &VAD{cfg: cfg, vad: v}, nil
}

func (n *VAD) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}}
}

func (n *VAD) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (n *VAD) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var received, sent, dropped uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		received++

		frame, isAudio := pkt.Audio()
		if !isAudio {
			continue
		}
		rms := dsp.RMS(frame.Samples())
		if !n.vad.ShouldSend(rms) {
			dropped++
			frame.Release()
			continue
		}

		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{
				NodeID: nodeName, PacketsIn: received, PacketsOut: sent, DroppedOut: dropped,
			})
		}
	}
}
