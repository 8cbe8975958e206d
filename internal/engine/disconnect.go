package engine

import (
	"fmt"

	"streamkit/internal/bus"
	"streamkit/internal/distributor"
	"streamkit/internal/node"
	"streamkit/internal/pin"
)

// disconnect is the mirror image of connect, identified by ConnectionId
// rather than by the (node, pin) tuple so two edges sharing a destination
// pin can be torn down independently.
func (e *Engine) disconnect(id pin.ConnectionId, reason string) error {
	conn, ok := e.connections[id]
	if !ok {
		return fmt.Errorf("unknown connection %q", id)
	}

	dist, ok := e.outputDistributors[conn.FromNode][conn.FromPin]
	if !ok {
		// The source node was already removed, which tore down its
		// distributors and every connection it carried (see removeNode); a
		// lookup miss here just means this entry is stale bookkeeping.
		delete(e.connections, id)
		return nil
	}

	dist.configTx <- distributor.RemoveConnection(id)

	if dst, ok := e.liveNodes[conn.ToNode]; ok {
		if n := dst.inboundCount[conn.ToPin]; n > 0 {
			dst.inboundCount[conn.ToPin] = n - 1
		}
		// A runtime-materialized family member with no edges left is torn
		// back out of the node, so its per-pin goroutine can stop.
		if dst.inboundCount[conn.ToPin] == 0 && dst.dynamicInputPins[conn.ToPin] {
			if dst.pinMgmtTx != nil {
				msg := node.PinManagementMessage{Kind: node.PinRemove, PinName: conn.ToPin}
				select {
				case dst.pinMgmtTx <- msg:
				default:
				}
			}
			delete(dst.inputSenders, conn.ToPin)
			delete(dst.dynamicInputPins, conn.ToPin)
		}
	}

	delete(e.connections, id)
	e.eventBus.Publish(bus.ConnectionRemoved(id, conn, reason))
	return nil
}
