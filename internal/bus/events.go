package bus

import "streamkit/internal/pin"

// EventKind identifies which lifecycle event payload a value holds.
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeRemoved
	EventConnectionAdded
	EventConnectionRemoved
	EventNodeStateChanged
	EventNodeStatsUpdated
	EventNodeParamsChanged
	EventSessionCreated
	EventSessionDestroyed
)

// Event is the engine's lifecycle event payload, fanned out on a dedicated
// bus separate from the raw state/stats streams (the engine keeps those on
// their own typed buses for subscribers that only want one slice of the data).
type Event struct {
	Kind         EventKind
	NodeID       string
	NodeKind     string
	Connection   pin.Connection
	ConnectionID pin.ConnectionId
	Reason       string
	SessionID    string
}

func NodeAdded(nodeID, kind string) Event {
	return Event{Kind: EventNodeAdded, NodeID: nodeID, NodeKind: kind}
}

func NodeRemoved(nodeID, reason string) Event {
	return Event{Kind: EventNodeRemoved, NodeID: nodeID, Reason: reason}
}

func ConnectionAdded(id pin.ConnectionId, conn pin.Connection) Event {
	return Event{Kind: EventConnectionAdded, ConnectionID: id, Connection: conn}
}

func ConnectionRemoved(id pin.ConnectionId, conn pin.Connection, reason string) Event {
	return Event{Kind: EventConnectionRemoved, ConnectionID: id, Connection: conn, Reason: reason}
}

func NodeParamsChanged(nodeID string) Event {
	return Event{Kind: EventNodeParamsChanged, NodeID: nodeID}
}

func SessionCreated(sessionID string) Event {
	return Event{Kind: EventSessionCreated, SessionID: sessionID}
}

func SessionDestroyed(sessionID string) Event {
	return Event{Kind: EventSessionDestroyed, SessionID: sessionID}
}
