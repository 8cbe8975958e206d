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

// NoiseGateConfig configures a NoiseGate node.
type NoiseGateConfig struct {
	// ThresholdLevel is a [0,100] gate threshold; 0 keeps the dsp default.
	ThresholdLevel int `json:"threshold_level"`
}

// NoiseGate zeroes Audio frames whose RMS falls below a threshold, holding
// the gate open briefly after speech to avoid chopping word endings.
type NoiseGate struct {
	node.BaseNode
	gate *dsp.Gate
}

// NewNoiseGate constructs a NoiseGate node from raw JSON params.
func NewNoiseGate(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg NoiseGateConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("noisegate: invalid params: %w", err)
		}
	}
	g := dsp.NewGate()
	if cfg.ThresholdLevel != 0 {
		g.SetThreshold(cfg.ThresholdLevel)
	}
	return &NoiseGate{gate: g}, nil
}

func (n *NoiseGate) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}}
}

func (n *NoiseGate) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (n *NoiseGate) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var sent uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}

		frame, isAudio := pkt.Audio()
		if isAudio {
			// MakeSamplesMut may swap in a private copy of a shared buffer, so
			// the packet is rebuilt around the frame it returns.
			n.gate.Process(frame.MakeSamplesMut())
			pkt = packet.NewAudioPacket(frame)
		}

		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: sent, PacketsOut: sent})
		}
	}
}
