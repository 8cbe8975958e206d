package node

import (
	"context"
	"fmt"

	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// PinManagementKind identifies a runtime pin add/remove request sent to a
// node that opted into supports_dynamic_pins.
type PinManagementKind int

const (
	PinAdd PinManagementKind = iota
	PinRemove
)

// PinManagementMessage asks a dynamic-pin node to create or destroy a
// concrete pin within one of its declared Dynamic{prefix} families. For
// PinAdd on an input pin, Rx is the receiver half of the channel the engine
// hands to the producer's distributor once the node acknowledges — the node must
// start reading it as part of acknowledging creation, since (unlike
// statically-declared pins) it was never placed in the initial Context.Inputs
// map. Rx is nil for PinRemove and for dynamic output pins (which the node
// reads nothing from). Ack may be nil when the sender does not need the
// handshake (PinRemove); nodes must check before replying.
type PinManagementMessage struct {
	Kind    PinManagementKind
	PinName string
	Rx      chan packet.Packet
	Ack     chan<- error
}

// PinUpdateKind identifies whether Tier-1 initialize() changed a node's pins.
type PinUpdateKind int

const (
	PinUpdateNoChange PinUpdateKind = iota
	PinUpdateUpdated
)

// PinUpdate is initialize()'s report of whether Tier-1 discovery changed a
// node's declared pins.
type PinUpdate struct {
	Kind    PinUpdateKind
	Inputs  []pin.InputPin
	Outputs []pin.OutputPin
}

func NoChange() PinUpdate { return PinUpdate{Kind: PinUpdateNoChange} }
func Updated(inputs []pin.InputPin, outputs []pin.OutputPin) PinUpdate {
	return PinUpdate{Kind: PinUpdateUpdated, Inputs: inputs, Outputs: outputs}
}

// InitContext is handed to a node's Initialize for Tier-1 async discovery,
// before the pipeline starts running it.
type InitContext struct {
	NodeID  string
	StateTx chan<- StateUpdate
}

// Context is the runtime context the engine builds and passes to a node's
// Run: every channel, knob, and shared handle a node task touches.
type Context struct {
	Inputs      map[string]chan packet.Packet
	ControlRx   <-chan ControlMessage
	Output      OutputSender
	BatchSize   int
	StateTx     chan<- StateUpdate
	StatsTx     chan<- StatsUpdate          // nil if stats reporting is disabled
	TelemetryTx chan<- TelemetryEvent       // nil if telemetry is disabled
	SessionID   string                      // empty if not session-scoped
	Cancel      context.Context             // cooperative shutdown signal distinct from ControlShutdown
	PinMgmtRx   <-chan PinManagementMessage // nil unless SupportsDynamicPins() is true
	AudioPool   *packet.AudioFramePool      // nil if pooling is disabled
}

// TakeInput removes and returns the named input pin's receiver, or an error
// if the engine never wired it.
func (c *Context) TakeInput(pinName string) (chan packet.Packet, error) {
	rx, ok := c.Inputs[pinName]
	if !ok {
		return nil, fmt.Errorf("engine did not provide %q pin receiver", pinName)
	}
	delete(c.Inputs, pinName)
	return rx, nil
}

// RecvWithCancellation receives from rx, returning (zero, false) if the
// context's cancellation signal fires first or the channel closes.
func (c *Context) RecvWithCancellation(rx <-chan packet.Packet) (packet.Packet, bool) {
	if c.Cancel == nil {
		p, ok := <-rx
		return p, ok
	}
	select {
	case <-c.Cancel.Done():
		return packet.Packet{}, false
	case p, ok := <-rx:
		return p, ok
	}
}

// ProcessorNode is the fundamental actor interface every node type
// implements.
type ProcessorNode interface {
	// InputPins returns this node instance's input pins.
	InputPins() []pin.InputPin
	// OutputPins returns this node instance's output pins.
	OutputPins() []pin.OutputPin

	// ContentType returns the MIME type for nodes that produce a final,
	// self-contained file format, or "" for nodes that don't.
	ContentType() string

	// Initialize performs Tier-1 discovery before the pipeline runs this
	// node. The default behavior (for nodes embedding BaseNode) is NoChange.
	Initialize(ctx context.Context, ictx *InitContext) (PinUpdate, error)

	// SupportsDynamicPins reports whether this node handles
	// PinManagementMessage on a Tier-2 pin-management mailbox.
	SupportsDynamicPins() bool

	// Run is the node's actor loop, spawned as a goroutine by the engine.
	Run(ctx context.Context, nctx *Context) error
}

// BaseNode supplies the default Initialize/SupportsDynamicPins/ContentType
// implementations so concrete node types only override what they need —
// and plugin adapters can layer their own on top.
type BaseNode struct{}

func (BaseNode) ContentType() string { return "" }

func (BaseNode) Initialize(context.Context, *InitContext) (PinUpdate, error) {
	return NoChange(), nil
}

func (BaseNode) SupportsDynamicPins() bool { return false }
