// Package core collects generic, media-agnostic ProcessorNode
// implementations: pacing, file I/O, passthrough, telemetry inspection, and
// text chunking. These are the pipeline scaffolding nodes; none of them are
// part of the engine core itself, but they exercise the same
// ProcessorNode/pin contracts it defines.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// PacerConfig configures a Pacer node's output rate.
type PacerConfig struct {
	// Speed is a playback-speed multiplier: 1.0 is real time, 2.0 paces
	// twice as fast, 0.5 half as fast.
	Speed float64 `json:"speed"`
}

func (c *PacerConfig) setDefaults() {
	if c.Speed == 0 {
		c.Speed = 1.0
	}
}

// Pacer re-emits whatever Packet kind it receives at the rate implied by
// each packet's AudioFrame duration (or, for non-audio packets, a fixed 20ms
// tick), throttling a producer that would otherwise burst ahead of a
// real-time consumer.
type Pacer struct {
	node.BaseNode
	cfg PacerConfig
}

// NewPacer constructs a Pacer node from raw JSON params.
func NewPacer(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg PacerConfig
	cfg.setDefaults()
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("pacer: invalid params: %w", err)
		}
	}
	if cfg.Speed <= 0 {
		return nil, fmt.Errorf("pacer: speed must be > 0")
	}
	return &Pacer{cfg: cfg}, nil
}

func (p *Pacer) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (p *Pacer) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (p *Pacer) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var sent uint64
	defaultTick := 20 * time.Millisecond
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}

		wait := defaultTick
		if frame, isAudio := pkt.Audio(); isAudio {
			if us, err := frame.DurationUs(); err == nil {
				wait = time.Duration(us) * time.Microsecond
			}
		}
		wait = time.Duration(float64(wait) / p.cfg.Speed)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		}

		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, PacketsIn: sent})
		}
	}
}
