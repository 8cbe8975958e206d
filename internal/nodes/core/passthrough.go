package core

import (
	"context"
	"encoding/json"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// Passthrough forwards every packet it receives unchanged. It is the
// simplest possible node and is frequently used as a generic tee or probe
// point; its output type is declared Passthrough so it inherits whatever
// concrete type flows into it.
type Passthrough struct {
	node.BaseNode
}

// NewPassthrough constructs a Passthrough node; it takes no parameters.
func NewPassthrough(json.RawMessage) (node.ProcessorNode, error) {
	return &Passthrough{}, nil
}

func (p *Passthrough) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (p *Passthrough) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}}
}

func (p *Passthrough) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		if err := nctx.Output.Send(ctx, "out", pkt); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
	}
}
