package engine

import (
	"context"
	"log"
	"time"

	"streamkit/internal/bus"
	"streamkit/internal/distributor"
	"streamkit/internal/pin"
)

// doShutdown runs the session shutdown sequence: every node's control mailbox
// is closed so its Run loop can exit cooperatively; stragglers past
// cfg.ShutdownDeadline are aborted via their own cancel(). Distributors are
// shut down only after that wait completes, then the node, distributor and
// connection maps are reset. The session's audio pool is not emptied: it
// keeps whatever buffers it holds.
func (e *Engine) doShutdown(ctx context.Context) {
	log.Printf("[engine] session %q shutting down: %d node(s)", e.cfg.SessionID, len(e.liveNodes))

	remaining := make(map[string]*liveNode, len(e.liveNodes))
	for id, ln := range e.liveNodes {
		remaining[id] = ln
		closeControl(ln)
	}

	deadline := time.NewTimer(e.cfg.ShutdownDeadline)
	defer deadline.Stop()

waitLoop:
	for len(remaining) > 0 {
		select {
		case d := <-e.nodeDone:
			delete(remaining, d.nodeID)
		case <-deadline.C:
			break waitLoop
		}
	}
	for id, ln := range remaining {
		log.Printf("[engine] node %q did not stop within shutdown deadline, aborting", id)
		ln.cancel()
	}

	for _, byPin := range e.outputDistributors {
		for _, dist := range byPin {
			select {
			case dist.configTx <- distributor.Shutdown():
			default:
			}
			dist.cancel()
		}
	}

	e.eventBus.Publish(bus.SessionDestroyed(e.cfg.SessionID))
	e.liveNodes = make(map[string]*liveNode)
	e.outputDistributors = make(map[string]map[string]*distributorEntry)
	e.connections = make(map[pin.ConnectionId]pin.Connection)
}

// closeControl closes a node's control mailbox exactly once, tolerating a
// node that raced ahead and is already gone from the map the caller walked.
func closeControl(ln *liveNode) {
	defer func() { recover() }()
	close(ln.controlTx)
}
