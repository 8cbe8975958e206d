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

// AGCConfig configures an AGC node.
type AGCConfig struct {
	// TargetLevel is a [0,100] desired loudness; 0 keeps the dsp default.
	TargetLevel int `json:"target_level"`
}

// AGC applies automatic gain control to Audio packets in place, adjusting a
// running gain toward a target RMS loudness.
type AGC struct {
	node.BaseNode
	agc *dsp.AGC
}

// NewAGC constructs an AGC node from raw JSON params.
func NewAGC(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg AGCConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("agc: invalid params: %w", err)
		}
	}
	a := dsp.NewAGC()
	if cfg.TargetLevel != 0 {
		a.SetTarget(cfg.TargetLevel)
	}
	return &AGC{agc: a}, nil
}

func (n *AGC) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}}
}

func (n *AGC) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (n *AGC) Run(ctx context.Context, nctx *node.Context) error {
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
			n.agc.Process(frame.MakeSamplesMut())
			pkt = packet.NewAudioPacket(frame)
		}

		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{
				NodeID: nodeName, PacketsIn: sent, PacketsOut: sent,
				Custom: map[string]float64{"gain": n.agc.Gain()},
			})
		}
	}
}
