package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// RTCEgressConfig configures an RTCEgress node. The answer SDP must come
// from whatever browser signaling channel negotiated this session; the node
// only needs the remote offer to build its own answer.
type RTCEgressConfig struct {
	// OfferSDP is the remote peer's SDP offer, base64-free JSON string form.
	OfferSDP string `json:"offer_sdp"`
	// Label names the data channel this node opens on the peer connection.
	Label string `json:"label"`
	// Ordered controls SCTP delivery ordering for the data channel.
	Ordered bool `json:"ordered"`
}

func (c *RTCEgressConfig) setDefaults() {
	if c.Label == "" {
		c.Label = "streamkit"
	}
}

// RTCEgress forwards Binary packets to a browser peer over a WebRTC data
// channel. It is a terminal node: no output pins.
//
// The peer connection is created from a remote offer, the data channel is
// opened by the local side, and Send is called once per outbound packet.
type RTCEgress struct {
	node.BaseNode
	cfg RTCEgressConfig

	mu   sync.Mutex
	open bool
}

// NewRTCEgress constructs an RTCEgress node from raw JSON params.
func NewRTCEgress(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg RTCEgressConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("rtc_egress: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	if cfg.OfferSDP == "" {
		return nil, node.NewConfigurationError("rtc_egress", "offer_sdp is required")
	}
	return &RTCEgress{cfg: cfg}, nil
}

func (n *RTCEgress) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.BinaryType()}, Cardinality: pin.One()}}
}

func (n *RTCEgress) OutputPins() []pin.OutputPin { return nil }

func (n *RTCEgress) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create peer connection", err)
	}
	defer pc.Close()

	dc, err := pc.CreateDataChannel(n.cfg.Label, &webrtc.DataChannelInit{Ordered: &n.cfg.Ordered})
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create data channel", err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() {
		n.mu.Lock()
		n.open = true
		n.mu.Unlock()
		close(opened)
	})
	dc.OnClose(func() {
		n.mu.Lock()
		n.open = false
		n.mu.Unlock()
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: n.cfg.OfferSDP}); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "set local description", err)
	}

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}

	select {
	case <-opened:
	case <-ctx.Done():
		node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
		return nil
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var sent, dropped uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		data, _, _, isBinary := pkt.Binary()
		if !isBinary {
			continue
		}

		n.mu.Lock()
		isOpen := n.open
		n.mu.Unlock()
		if !isOpen {
			dropped++
			continue
		}

		if err := dc.Send(data); err != nil {
			dropped++
			node.EmitState(nctx.StateTx, nodeName, node.Degraded("data channel send failed", map[string]any{"error": err.Error()}))
			continue
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, DroppedOut: dropped})
		}
	}
}
