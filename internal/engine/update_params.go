package engine

import (
	"encoding/json"

	"streamkit/internal/bus"
	"streamkit/internal/node"
)

// updateParams forwards a live parameter update to a node's control
// mailbox. UpdateParams is a low-rate control-plane operation, so unlike
// Send() on the data plane this blocks until the node's mailbox accepts it —
// there is no bounded-queue backpressure concern to protect against here,
// only the possibility that the node has already exited, which close(ln.done)
// surfaces.
func (e *Engine) updateParams(nodeID string, params json.RawMessage) error {
	ln, ok := e.liveNodes[nodeID]
	if !ok {
		return node.NewConfigurationError(nodeID, "no such node")
	}

	select {
	case ln.controlTx <- node.UpdateParamsMessage(params):
	case <-ln.done:
		return node.NewConfigurationError(nodeID, "node has already stopped")
	}

	e.eventBus.Publish(bus.NodeParamsChanged(nodeID))
	return nil
}

// startNode releases a source node parked in Ready: a source produces
// nothing until the controller has attached whatever connections and
// subscribers it wants loss-free, then sends Start. Sending Start to a node
// that never parks is harmless — nodes ignore control messages they have no
// use for.
func (e *Engine) startNode(nodeID string) error {
	ln, ok := e.liveNodes[nodeID]
	if !ok {
		return node.NewConfigurationError(nodeID, "no such node")
	}

	select {
	case ln.controlTx <- node.StartMessage():
	case <-ln.done:
		return node.NewConfigurationError(nodeID, "node has already stopped")
	}
	return nil
}
