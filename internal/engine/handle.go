package engine

import (
	"context"
	"encoding/json"
	"errors"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// ErrEngineStopped is returned by Handle methods when the engine actor has
// already exited and can no longer accept control or query messages.
var ErrEngineStopped = errors.New("engine: session has already shut down")

// Handle is the external API for a running Engine: every
// method is a round-trip through the actor's control or query mailbox, so
// callers never touch the engine's internal maps directly.
type Handle struct {
	e    *Engine
	done chan struct{}
}

// Join blocks until the engine's actor goroutine has exited, e.g. after
// Shutdown or the governing context being canceled.
func (h *Handle) Join() {
	<-h.done
}

// AudioPool exposes the session's shared audio frame pool, so external
// collaborators (e.g. a wsapi handler reading uploaded audio) can build
// pooled AudioFrames without a roundtrip through the engine actor.
func (h *Handle) AudioPool() *packet.AudioFramePool { return &h.e.pool }

func (h *Handle) sendControl(ctx context.Context, msg ControlMessage, reply chan error) error {
	select {
	case h.e.controlRx <- msg:
	case <-h.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) sendQuery(ctx context.Context, msg QueryMessage, reply chan QueryResult) (QueryResult, error) {
	select {
	case h.e.queryRx <- msg:
	case <-h.done:
		return QueryResult{}, ErrEngineStopped
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-h.done:
		return QueryResult{}, ErrEngineStopped
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}
}

// AddNode registers and spawns a new node instance of the given kind.
func (h *Handle) AddNode(ctx context.Context, nodeID, kind string, params json.RawMessage) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, AddNode(nodeID, kind, params, reply), reply)
}

// RemoveNode tears a node and every edge touching it out of the graph.
func (h *Handle) RemoveNode(ctx context.Context, nodeID string) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, RemoveNode(nodeID, reply), reply)
}

// Connect wires an output pin to an input pin with the given delivery mode.
func (h *Handle) Connect(ctx context.Context, fromNode, fromPin, toNode, toPin string, mode pin.ConnectionMode) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, Connect(fromNode, fromPin, toNode, toPin, mode, reply), reply)
}

// Disconnect removes a single edge by its ConnectionId.
func (h *Handle) Disconnect(ctx context.Context, id pin.ConnectionId) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, Disconnect(id, reply), reply)
}

// StartNode sends Start to a source node parked in Ready, releasing it to
// produce data.
func (h *Handle) StartNode(ctx context.Context, nodeID string) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, StartNode(nodeID, reply), reply)
}

// UpdateParams pushes a live parameter update to a running node.
func (h *Handle) UpdateParams(ctx context.Context, nodeID string, params json.RawMessage) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, UpdateParams(nodeID, params, reply), reply)
}

// Shutdown tears the whole session down and stops the engine actor.
func (h *Handle) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	return h.sendControl(ctx, ShutdownMessage(reply), reply)
}

// NodeStates returns a point-in-time snapshot of every node's last reported
// lifecycle state.
func (h *Handle) NodeStates(ctx context.Context) (map[string]node.NodeState, error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, GetNodeStates(reply), reply)
	return res.NodeStates, err
}

// NodeStats returns a point-in-time snapshot of every node's last reported
// counters.
func (h *Handle) NodeStats(ctx context.Context) (map[string]node.StatsUpdate, error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, GetNodeStats(reply), reply)
	return res.NodeStats, err
}

// Connections lists every edge currently in the graph together with the id
// Disconnect takes.
func (h *Handle) Connections(ctx context.Context) ([]ConnectionRecord, error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, ListConnections(reply), reply)
	return res.Connections, err
}

// SubscribeState returns a live feed of node state transitions.
func (h *Handle) SubscribeState(ctx context.Context) (<-chan bus.Envelope[node.StateUpdate], func(), error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, SubscribeState(reply), reply)
	return res.StateSub, res.Unsubscribe, err
}

// SubscribeStats returns a live feed of node counter deltas.
func (h *Handle) SubscribeStats(ctx context.Context) (<-chan bus.Envelope[node.StatsUpdate], func(), error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, SubscribeStats(reply), reply)
	return res.StatsSub, res.Unsubscribe, err
}

// SubscribeTelemetry returns a live feed of redacted telemetry events.
func (h *Handle) SubscribeTelemetry(ctx context.Context) (<-chan bus.Envelope[node.TelemetryEvent], func(), error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, SubscribeTelemetry(reply), reply)
	return res.TelemetrySub, res.Unsubscribe, err
}

// SubscribeEvents returns a live feed of graph lifecycle events (node/
// connection added/removed, state changes, session lifecycle).
func (h *Handle) SubscribeEvents(ctx context.Context) (<-chan bus.Envelope[bus.Event], func(), error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, SubscribeEvents(reply), reply)
	return res.EventSub, res.Unsubscribe, err
}

// Definitions describes every node kind registered with the engine's
// registry, for external collaborators (e.g. a UI) to introspect.
func (h *Handle) Definitions(ctx context.Context) ([]registry.Definition, error) {
	reply := make(chan QueryResult, 1)
	res, err := h.sendQuery(ctx, GetDefinitions(reply), reply)
	return res.Definitions, err
}
