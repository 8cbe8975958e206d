package node

import (
	"context"
	"fmt"
	"sync"

	"streamkit/internal/packet"
)

// RoutedPacket is the message shape used by Routed output: a packet tagged
// with the node and pin it came from, for the engine to dispatch to the
// right distributor.
type RoutedPacket struct {
	NodeName string
	PinName  string
	Packet   packet.Packet
}

// OutputRouting is how a node's OutputSender delivers packets.
type OutputRouting struct {
	// Direct sends each pin's packets straight to that pin's channel: used by
	// the oneshot runner, and by the dynamic engine with each channel being
	// the pin's distributor input. Present iff Routed is nil.
	Direct map[string]chan packet.Packet
	// Routed sends every packet to a single channel, tagged with node/pin,
	// for the receiver to fan out. Present iff Direct is nil. Neither the
	// dynamic engine nor the oneshot runner uses it.
	Routed chan<- RoutedPacket
}

// OutputSendError is returned by OutputSender.Send when a packet cannot be
// delivered.
type OutputSendError struct {
	NodeName string
	PinName  string
	// Closed distinguishes "channel closed" from "pin not found"; both halt
	// the node, but only the former is expected during shutdown.
	Closed bool
}

func (e *OutputSendError) Error() string {
	if e.Closed {
		return fmt.Sprintf("output channel closed for pin %q on node %q", e.PinName, e.NodeName)
	}
	return fmt.Sprintf("unknown output pin %q on node %q", e.PinName, e.NodeName)
}

// OutputSender is the handle a node uses to send packets from its output
// pins. A node should stop processing when Send returns an error: it
// indicates either a programming mistake (unknown pin) or pipeline shutdown.
type OutputSender struct {
	nodeName string
	routing  OutputRouting
	// mu guards routing.Direct against concurrent AddDirectPin calls made by
	// the engine when a Dynamic{prefix} output pin family grows a new
	// concrete member after the node has already started running. It is a
	// pointer so copies of OutputSender (it's handed around by value) share
	// one lock; nil when routing has no Direct map to protect.
	mu *sync.RWMutex
}

// NewOutputSender builds a sender for nodeName using the given routing.
func NewOutputSender(nodeName string, routing OutputRouting) OutputSender {
	s := OutputSender{nodeName: nodeName, routing: routing}
	if routing.Direct != nil {
		s.mu = &sync.RWMutex{}
	}
	return s
}

// NodeName reports the owning node's name.
func (s OutputSender) NodeName() string { return s.nodeName }

// AddDirectPin registers a new Direct-routed output channel at runtime, for
// a concrete pin materialized under a Dynamic{prefix} output pin family
// after the node is already running. Safe to call concurrently with Send.
func (s OutputSender) AddDirectPin(pinName string, ch chan packet.Packet) {
	if s.mu == nil || s.routing.Direct == nil {
		return
	}
	s.mu.Lock()
	s.routing.Direct[pinName] = ch
	s.mu.Unlock()
}

// RemoveDirectPin removes a Direct-routed output channel, e.g. once a
// dynamic pin family member is torn down.
func (s OutputSender) RemoveDirectPin(pinName string) {
	if s.mu == nil || s.routing.Direct == nil {
		return
	}
	s.mu.Lock()
	delete(s.routing.Direct, pinName)
	s.mu.Unlock()
}

// Send delivers a packet from the named output pin. Direct routing tries a
// non-blocking send first and falls back to a blocking send (synchronous
// backpressure) only if the channel is full; Routed always goes through the
// single engine channel the same way. Go channels panic on a send to a
// closed channel rather than returning an error, so receivers here never
// close their channel on shutdown — they stop reading and cancel ctx
// instead, which Send treats as ChannelClosed.
func (s OutputSender) Send(ctx context.Context, pinName string, pkt packet.Packet) error {
	if s.routing.Direct != nil {
		s.mu.RLock()
		ch, ok := s.routing.Direct[pinName]
		s.mu.RUnlock()
		if !ok {
			return &OutputSendError{NodeName: s.nodeName, PinName: pinName}
		}
		select {
		case ch <- pkt:
			return nil
		default:
		}
		select {
		case ch <- pkt:
			return nil
		case <-ctx.Done():
			return &OutputSendError{NodeName: s.nodeName, PinName: pinName, Closed: true}
		}
	}

	msg := RoutedPacket{NodeName: s.nodeName, PinName: pinName, Packet: pkt}
	select {
	case s.routing.Routed <- msg:
		return nil
	default:
	}
	select {
	case s.routing.Routed <- msg:
		return nil
	case <-ctx.Done():
		return &OutputSendError{NodeName: s.nodeName, PinName: pinName, Closed: true}
	}
}
