package engine

import (
	"streamkit/internal/node"
	"streamkit/internal/pin"
)

func (e *Engine) snapshotStates() map[string]node.NodeState {
	out := make(map[string]node.NodeState, len(e.nodeStates))
	for k, v := range e.nodeStates {
		out[k] = v
	}
	return out
}

func (e *Engine) snapshotStats() map[string]node.StatsUpdate {
	out := make(map[string]node.StatsUpdate, len(e.nodeStats))
	for k, v := range e.nodeStats {
		out[k] = v
	}
	return out
}

// ConnectionRecord pairs an edge with the id Disconnect targets it by, so
// external controllers can list and then remove specific edges.
type ConnectionRecord struct {
	ID pin.ConnectionId
	pin.Connection
}

func (e *Engine) snapshotConnections() []ConnectionRecord {
	out := make([]ConnectionRecord, 0, len(e.connections))
	for id, c := range e.connections {
		out = append(out, ConnectionRecord{ID: id, Connection: c})
	}
	return out
}
