package engine

import (
	"context"

	"streamkit/internal/distributor"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// distributorEntry is everything the engine needs to keep a running
// distributor addressable: its config mailbox (to add/remove connections or
// shut it down) and the data channel fed to the owning node's OutputSender.
type distributorEntry struct {
	dataTx   chan packet.Packet
	configTx chan distributor.ConfigMessage
	cancel   context.CancelFunc
}

// liveNode is the engine's bookkeeping for one running node instance.
type liveNode struct {
	name string
	kind string

	inst node.ProcessorNode

	inputPins  []pin.InputPin
	outputPins []pin.OutputPin

	// inputSenders holds the send half of each declared input pin's
	// channel; the receive half was handed to the node's Context.Inputs at
	// spawn time. Connect looks a destination pin's sender up here to wire
	// it into the source's distributor.
	inputSenders map[string]chan packet.Packet
	// inboundCount tracks how many edges currently target each input pin,
	// for cardinality enforcement.
	inboundCount map[string]int

	// dynamicInputPins holds concrete pin names materialized at runtime
	// under a Dynamic{prefix} input pin family.
	dynamicInputPins map[string]bool

	controlTx chan node.ControlMessage
	pinMgmtTx chan node.PinManagementMessage

	// output is the node's own OutputSender handle, kept so Connect can call
	// AddDirectPin when a Dynamic{prefix} output pin family gains a concrete
	// member after the node is already running. Members are never removed.
	output node.OutputSender

	cancel context.CancelFunc
	done   chan error // receives the node's Run() result once, then is closed
}

func (n *liveNode) findInputPin(wireName string) (pin.InputPin, bool) {
	return pin.ResolveDynamicInputPin(n.inputPins, wireName)
}

func (n *liveNode) findOutputPin(wireName string) (pin.OutputPin, bool) {
	for _, p := range n.outputPins {
		if p.Name == wireName {
			return p, true
		}
		if prefix, ok := p.Cardinality.IsDynamic(); ok {
			if p.Cardinality.MatchesDynamicName(wireName) && len(wireName) > len(prefix) {
				return p, true
			}
		}
	}
	return pin.OutputPin{}, false
}
