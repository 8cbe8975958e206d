// Package transport holds egress nodes that hand packets off to external
// real-time delivery collaborators: a WebTransport/QUIC datagram relay
// standing in for a MoQ gateway, and a WebRTC data channel for browser
// peers. Both are terminal nodes (no output pins) — once a packet leaves
// here it is someone else's transport.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// Circuit breaker constants for datagram egress.
const (
	circuitBreakerThreshold     uint32 = 50
	circuitBreakerProbeInterval uint32 = 25
)

// sendHealth tracks consecutive SendDatagram failures for one egress target
// and implements a probe-based circuit breaker: after circuitBreakerThreshold
// consecutive failures only every circuitBreakerProbeInterval-th send is
// attempted.
type sendHealth struct {
	failures atomic.Uint32
	skips    atomic.Uint32
}

func (h *sendHealth) shouldSkip() bool {
	if h.failures.Load() < circuitBreakerThreshold {
		return false
	}
	s := h.skips.Add(1)
	return s%circuitBreakerProbeInterval != 0
}

func (h *sendHealth) recordFailure() uint32 {
	return h.failures.Add(1)
}

func (h *sendHealth) recordSuccess() bool {
	wasTripped := h.failures.Swap(0) >= circuitBreakerThreshold
	if wasTripped {
		h.skips.Store(0)
	}
	return wasTripped
}

// MoQPushConfig configures a MoQPush node.
type MoQPushConfig struct {
	// URL is the WebTransport endpoint to dial, e.g. "https://relay:4433/moq".
	URL string `json:"url"`
	// InsecureSkipVerify disables TLS certificate verification, for dialing
	// self-signed relays in development.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// MoQPush hands Binary (and Opus Audio, via its payload) packets off to a
// WebTransport session as unreliable datagrams, standing in for a MoQ
// relay's ingest path. It is a terminal node: no output pins.
//
// The circuit breaker protects a single egress session; a relay that stops
// accepting datagrams costs probes, not a stalled pipeline.
type MoQPush struct {
	node.BaseNode
	cfg    MoQPushConfig
	health sendHealth
}

// NewMoQPush constructs a MoQPush node from raw JSON params.
func NewMoQPush(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg MoQPushConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("moq_push: invalid params: %w", err)
		}
	}
	if cfg.URL == "" {
		return nil, node.NewConfigurationError("moq_push", "url is required")
	}
	return &MoQPush{cfg: cfg}, nil
}

func (n *MoQPush) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (n *MoQPush) OutputPins() []pin.OutputPin { return nil }

func (n *MoQPush) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	dialer := webtransport.Dialer{
		QUICConfig: &quic.Config{EnableDatagrams: true},
	}
	if n.cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	_, sess, err := dialer.Dial(ctx, n.cfg.URL, http.Header{})
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "dial moq relay", err)
	}
	defer sess.CloseWithError(0, "")

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var sent, dropped uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}

		data := payloadBytes(pkt)
		if data == nil {
			continue
		}

		if n.health.shouldSkip() {
			dropped++
			continue
		}
		if err := sess.SendDatagram(data); err != nil {
			if f := n.health.recordFailure(); f == circuitBreakerThreshold {
				node.EmitState(nctx.StateTx, nodeName, node.Degraded("circuit breaker open", map[string]any{"consecutive_failures": f}))
			}
			dropped++
			continue
		}
		if n.health.failures.Load() > 0 && n.health.recordSuccess() {
			node.EmitState(nctx.StateTx, nodeName, node.Running())
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, DroppedOut: dropped})
		}
	}
}

// payloadBytes extracts the wire bytes of a packet suitable for datagram
// egress: Binary payloads pass through as-is; other kinds have no defined
// datagram representation and are skipped.
func payloadBytes(pkt packet.Packet) []byte {
	if data, _, _, ok := pkt.Binary(); ok {
		return data
	}
	return nil
}
