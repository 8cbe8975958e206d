package engine

import (
	"context"
	"fmt"
	"time"

	"streamkit/internal/bus"
	"streamkit/internal/distributor"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// pinAckTimeout bounds how long Connect waits for a dynamic-pin node to
// acknowledge a newly materialized concrete pin before giving up.
const pinAckTimeout = 2 * time.Second

// connect wires one output pin to one input pin.
func (e *Engine) connect(ctx context.Context, fromNode, fromPin, toNode, toPin string, mode pin.ConnectionMode) error {
	src, ok := e.liveNodes[fromNode]
	if !ok {
		return node.NewConfigurationError(fromNode, "unknown source node")
	}
	dst, ok := e.liveNodes[toNode]
	if !ok {
		return node.NewConfigurationError(toNode, "unknown destination node")
	}
	srcPinDecl, ok := src.findOutputPin(fromPin)
	if !ok {
		return node.NewConfigurationError(fromNode, fmt.Sprintf("unknown output pin %q", fromPin))
	}
	dstPinDecl, ok := dst.findInputPin(toPin)
	if !ok {
		return node.NewConfigurationError(toNode, fmt.Sprintf("unknown input pin %q", toPin))
	}

	// 1: type compatibility (Passthrough accepted optimistically).
	if !acceptsAny(srcPinDecl.ProducesType, dstPinDecl.AcceptsTypes) {
		return node.NewConfigurationError(toNode, fmt.Sprintf(
			"output %s.%s (%v) is not compatible with input %s.%s", fromNode, fromPin, srcPinDecl.ProducesType.Kind, toNode, toPin))
	}

	// 2: cardinality.
	if err := pin.CheckInboundCardinality(toPin, dstPinDecl.Cardinality, dst.inboundCount[toPin]); err != nil {
		return node.NewConfigurationError(toNode, err.Error())
	}

	// 3-4: resolve (or materialize) the destination channel.
	destCh, ok := dst.inputSenders[toPin]
	if !ok {
		if _, isDynamic := dstPinDecl.Cardinality.IsDynamic(); !isDynamic {
			return node.NewConfigurationError(toNode, fmt.Sprintf("input pin %q is not wired and is not a dynamic pin family", toPin))
		}
		destCh = make(chan packet.Packet, e.cfg.PinDistributorCapacity)
		if dst.pinMgmtTx != nil {
			if err := e.acknowledgePinAdd(dst, toPin, destCh); err != nil {
				return node.NewConfigurationError(toNode, fmt.Sprintf("pin-management ack for %q failed: %v", toPin, err))
			}
		}
		dst.inputSenders[toPin] = destCh
		dst.dynamicInputPins[toPin] = true
	}

	// Output-side materialization: a Dynamic output pin family gains a
	// distributor the first time one of its concrete members is connected.
	dist, ok := e.outputDistributors[fromNode][fromPin]
	if !ok {
		if _, isDynamic := srcPinDecl.Cardinality.IsDynamic(); !isDynamic {
			return node.NewConfigurationError(fromNode, fmt.Sprintf("output pin %q has no distributor", fromPin))
		}
		dist = e.spawnOutputDistributor(ctx, src, fromPin)
	}

	// 5: hand the destination channel to the source distributor.
	connID := pin.NewConnectionId()
	select {
	case dist.configTx <- distributor.AddConnection(connID, destCh, mode):
	case <-time.After(pinAckTimeout):
		return node.NewRuntimeError(fromNode, fmt.Sprintf("distributor for %q did not accept connection in time", fromPin), nil)
	}

	dst.inboundCount[toPin]++
	conn := pin.Connection{FromNode: fromNode, FromPin: fromPin, ToNode: toNode, ToPin: toPin, Mode: mode}
	e.connections[connID] = conn

	// 6: emit.
	e.eventBus.Publish(bus.ConnectionAdded(connID, conn))
	return nil
}

func acceptsAny(out packet.PacketType, accepted []packet.PacketType) bool {
	for _, in := range accepted {
		if packet.AcceptsAtConnectTime(out, in) {
			return true
		}
	}
	return false
}

// acknowledgePinAdd sends a PinAdd management message and blocks for the
// node's acknowledgement: the engine informs the node of a
// newly materialized concrete input pin and waits before wiring it up.
func (e *Engine) acknowledgePinAdd(dst *liveNode, pinName string, rx chan packet.Packet) error {
	ack := make(chan error, 1)
	msg := node.PinManagementMessage{Kind: node.PinAdd, PinName: pinName, Rx: rx, Ack: ack}
	select {
	case dst.pinMgmtTx <- msg:
	case <-time.After(pinAckTimeout):
		return fmt.Errorf("node did not accept pin-management request in time")
	}
	select {
	case err := <-ack:
		return err
	case <-time.After(pinAckTimeout):
		return fmt.Errorf("node did not acknowledge pin creation in time")
	}
}

// spawnOutputDistributor materializes the distributor for a Dynamic output
// pin family's first concrete member and wires its data channel into the
// node's already-running OutputSender via AddDirectPin.
func (e *Engine) spawnOutputDistributor(ctx context.Context, src *liveNode, pinName string) *distributorEntry {
	dataCh := make(chan packet.Packet, e.cfg.PinDistributorCapacity)
	configCh := make(chan distributor.ConfigMessage, 8)
	distCtx, cancel := context.WithCancel(ctx)
	dist := distributor.New(dataCh, configCh, src.name, pinName)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		dist.Run(distCtx)
	}()

	src.output.AddDirectPin(pinName, dataCh)

	entry := &distributorEntry{dataTx: dataCh, configTx: configCh, cancel: cancel}
	if e.outputDistributors[src.name] == nil {
		e.outputDistributors[src.name] = make(map[string]*distributorEntry)
	}
	e.outputDistributors[src.name][pinName] = entry
	return entry
}
