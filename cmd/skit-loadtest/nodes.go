package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// registerLoadNodes adds the synthetic source/sink pair the load scenarios
// are built from. They are registered without a namespace prefix, the way
// any embedding program registers its own kinds.
func registerLoadNodes(reg *registry.Registry) error {
	sourcePins := registry.StaticPins{
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.RawAudioType(0, 0, packet.SampleFormatF32), Cardinality: pin.Broadcast()}},
	}
	if err := reg.RegisterStatic("loadgen_source", newToneSource, nil, sourcePins, []string{"loadtest"}, false,
		"Synthetic source emitting a 440 Hz tone as raw audio frames at a fixed rate"); err != nil {
		return err
	}
	sinkPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}},
	}
	return reg.RegisterStatic("loadgen_sink", newCountingSink, nil, sinkPins, []string{"loadtest"}, false,
		"Synthetic sink counting received packets, with an optional per-packet delay")
}

type toneSourceConfig struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	FrameMs    int `json:"frame_ms"`
}

func (c *toneSourceConfig) setDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameMs == 0 {
		c.FrameMs = 20
	}
}

// toneSource is the load generator: a source node pacing 440 Hz tone frames
// out on a wall-clock ticker, standing in for a microphone or a remote
// ingest.
type toneSource struct {
	node.BaseNode
	cfg toneSourceConfig
}

func newToneSource(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg toneSourceConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("loadgen_source: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	if cfg.SampleRate < 8000 || cfg.Channels < 1 || cfg.FrameMs < 1 {
		return nil, fmt.Errorf("loadgen_source: sample_rate/channels/frame_ms out of range")
	}
	return &toneSource{cfg: cfg}, nil
}

func (s *toneSource) InputPins() []pin.InputPin { return nil }

func (s *toneSource) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{
		Name:         "out",
		ProducesType: packet.RawAudioType(uint32(s.cfg.SampleRate), uint16(s.cfg.Channels), packet.SampleFormatF32),
		Cardinality:  pin.Broadcast(),
	}}
}

func (s *toneSource) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	if !node.AwaitStart(ctx, nctx, nil) {
		return nil
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	frameSamples := s.cfg.SampleRate * s.cfg.FrameMs / 1000
	interval := time.Duration(s.cfg.FrameMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * 440 / float64(s.cfg.SampleRate)

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		case <-ticker.C:
		}

		var samples []float32
		var pooled *packet.PooledSamples
		if nctx.AudioPool != nil {
			pooled = nctx.AudioPool.Get(frameSamples * s.cfg.Channels)
			samples = pooled.AsMutSlice()
		} else {
			samples = make([]float32, frameSamples*s.cfg.Channels)
		}
		for i := 0; i < frameSamples; i++ {
			v := float32(0.2 * math.Sin(phase))
			phase += step
			for ch := 0; ch < s.cfg.Channels; ch++ {
				samples[i*s.cfg.Channels+ch] = v
			}
		}

		var frame packet.AudioFrame
		if pooled != nil {
			frame = packet.FromPooled(uint32(s.cfg.SampleRate), uint16(s.cfg.Channels), pooled, nil)
		} else {
			frame = packet.NewAudioFrame(uint32(s.cfg.SampleRate), uint16(s.cfg.Channels), samples)
		}

		if err := nctx.Output.Send(ctx, "out", packet.NewAudioPacket(frame)); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%64 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent})
		}
	}
}

type countingSinkConfig struct {
	// DelayMs slows the sink down per packet, for backpressure and
	// best-effort drop scenarios.
	DelayMs int `json:"delay_ms"`
}

// countingSink drains its input, counting packets and optionally sleeping
// per packet to simulate a slow consumer.
type countingSink struct {
	node.BaseNode
	cfg countingSinkConfig
}

func newCountingSink(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg countingSinkConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("loadgen_sink: invalid params: %w", err)
		}
	}
	return &countingSink{cfg: cfg}, nil
}

func (s *countingSink) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (s *countingSink) OutputPins() []pin.OutputPin { return nil }

func (s *countingSink) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var received uint64
	for {
		_, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received})
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		received++
		if s.cfg.DelayMs > 0 {
			select {
			case <-time.After(time.Duration(s.cfg.DelayMs) * time.Millisecond):
			case <-ctx.Done():
				node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
				return nil
			}
		}
		if received%64 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received})
		}
	}
}
