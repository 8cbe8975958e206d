package engine

import (
	"log"

	"streamkit/internal/bus"
	"streamkit/internal/distributor"
	"streamkit/internal/node"
)

// removeNode tears one node out of the graph: every connection that
// touches this node (incoming or outgoing) is torn down first, each with its
// own ConnectionRemoved event, then the node's own mailboxes and
// distributors are closed down.
func (e *Engine) removeNode(nodeID, reason string) error {
	ln, ok := e.liveNodes[nodeID]
	if !ok {
		return node.NewConfigurationError(nodeID, "no such node")
	}

	for id, conn := range e.connections {
		if conn.FromNode == nodeID || conn.ToNode == nodeID {
			if err := e.disconnect(id, reason); err != nil {
				log.Printf("[engine] removeNode(%q): disconnect %s failed: %v", nodeID, id, err)
			}
		}
	}

	for _, dist := range e.outputDistributors[nodeID] {
		select {
		case dist.configTx <- distributor.Shutdown():
		default:
		}
		dist.cancel()
	}
	delete(e.outputDistributors, nodeID)

	close(ln.controlTx)
	ln.cancel()

	delete(e.liveNodes, nodeID)
	delete(e.nodeStates, nodeID)
	delete(e.nodeStats, nodeID)

	node.EmitState(e.sharedStateTx, nodeID, node.Stopped(node.StopShutdown))
	e.eventBus.Publish(bus.NodeRemoved(nodeID, reason))
	log.Printf("[engine] node %q removed (%s)", nodeID, reason)
	return nil
}
