package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streamkit/internal/dsp"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// JitterConfig sets the reorder window of a Jitter node.
type JitterConfig struct {
	// DepthFrames is how many 20 ms frames to buffer before playout starts;
	// deeper buffers tolerate more reordering at the cost of latency.
	DepthFrames int `json:"depth_frames"`
}

func (c *JitterConfig) setDefaults() {
	if c.DepthFrames == 0 {
		c.DepthFrames = 3
	}
}

// Jitter smooths a lossy, reordering transport: Opus packets arriving with
// sequence metadata are buffered and re-emitted in order on a 20 ms playout
// tick. A missing sequence number is emitted as an empty payload so a
// downstream decoder can run packet-loss concealment instead of stalling.
// Packets without sequence metadata pass through unchanged.
type Jitter struct {
	node.BaseNode
	cfg JitterConfig
}

// NewJitter constructs a Jitter node from raw JSON params.
func NewJitter(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg JitterConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("audio_jitter: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	if cfg.DepthFrames < 0 {
		return nil, fmt.Errorf("audio_jitter: depth_frames must be >= 0")
	}
	return &Jitter{cfg: cfg}, nil
}

func (n *Jitter) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.OpusAudioType()}, Cardinality: pin.One()}}
}

func (n *Jitter) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.OpusAudioType(), Cardinality: pin.Broadcast()}}
}

func (n *Jitter) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	buffer := dsp.NewJitterBuffer(n.cfg.DepthFrames)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	inputOpen := true
	for {
		select {
		case pkt, ok := <-in:
			if !ok {
				inputOpen = false
				in = nil
				break
			}
			data, contentType, meta, isBinary := pkt.Binary()
			if !isBinary {
				continue
			}
			if meta == nil || meta.Sequence == nil {
				// No sequencing to recover; forward as-is.
				if err := nctx.Output.Send(ctx, "out", packet.NewBinaryPacket(data, contentType, meta)); err != nil {
					node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
					return nil
				}
				continue
			}
			buffer.Push(0, uint16(*meta.Sequence), data)

		case <-ticker.C:
			for _, frame := range buffer.Pop() {
				// An empty payload asks the decoder for loss concealment.
				if err := nctx.Output.Send(ctx, "out", packet.NewBinaryPacket(frame.OpusData, nil, nil)); err != nil {
					node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
					return nil
				}
			}
			if !inputOpen && buffer.ActiveSenders() == 0 {
				node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
				return nil
			}

		case <-ctx.Done():
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		}
	}
}
