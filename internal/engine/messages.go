package engine

import (
	"encoding/json"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// ControlKind identifies which structural mutation a ControlMessage
// requests.
type ControlKind int

const (
	ControlAddNode ControlKind = iota
	ControlRemoveNode
	ControlConnect
	ControlDisconnect
	ControlUpdateParams
	ControlStartNode
	ControlShutdown
)

// ControlMessage is a structural graph mutation request. Reply, if
// non-nil, receives exactly one value: nil on success or an error
// (typically a *node.ConfigurationError) on failure.
type ControlMessage struct {
	Kind ControlKind

	// AddNode
	NodeID   string
	NodeKind string // node kind to look up in the registry
	Params   json.RawMessage

	// RemoveNode / UpdateParams reuse NodeID above.

	// Connect / Disconnect
	FromNode     string
	FromPin      string
	ToNode       string
	ToPin        string
	Mode         pin.ConnectionMode
	ConnectionID pin.ConnectionId // Disconnect only

	Reply chan<- error
}

func AddNode(nodeID, kind string, params json.RawMessage, reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlAddNode, NodeID: nodeID, NodeKind: kind, Params: params, Reply: reply}
}

func RemoveNode(nodeID string, reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlRemoveNode, NodeID: nodeID, Reply: reply}
}

func Connect(fromNode, fromPin, toNode, toPin string, mode pin.ConnectionMode, reply chan<- error) ControlMessage {
	return ControlMessage{
		Kind: ControlConnect, FromNode: fromNode, FromPin: fromPin,
		ToNode: toNode, ToPin: toPin, Mode: mode, Reply: reply,
	}
}

func Disconnect(id pin.ConnectionId, reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlDisconnect, ConnectionID: id, Reply: reply}
}

func UpdateParams(nodeID string, params json.RawMessage, reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlUpdateParams, NodeID: nodeID, Params: params, Reply: reply}
}

func StartNode(nodeID string, reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlStartNode, NodeID: nodeID, Reply: reply}
}

func ShutdownMessage(reply chan<- error) ControlMessage {
	return ControlMessage{Kind: ControlShutdown, Reply: reply}
}

// QueryKind identifies which read-only question a QueryMessage asks.
type QueryKind int

const (
	QueryGetNodeStates QueryKind = iota
	QueryGetNodeStats
	QuerySubscribeState
	QuerySubscribeStats
	QuerySubscribeTelemetry
	QueryDefinitions
	QueryListConnections
	QuerySubscribeEvents
)

// QueryResult is the reply-channel payload for every QueryMessage variant;
// only the field matching the originating Kind is meaningful.
type QueryResult struct {
	NodeStates map[string]node.NodeState
	NodeStats  map[string]node.StatsUpdate

	StateSub     <-chan bus.Envelope[node.StateUpdate]
	StatsSub     <-chan bus.Envelope[node.StatsUpdate]
	TelemetrySub <-chan bus.Envelope[node.TelemetryEvent]
	EventSub     <-chan bus.Envelope[bus.Event]
	Unsubscribe  func()

	Connections []ConnectionRecord

	Definitions []registry.Definition
}

// QueryMessage is a read-only question answered via Reply.
type QueryMessage struct {
	Kind  QueryKind
	Reply chan<- QueryResult
}

func GetNodeStates(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QueryGetNodeStates, Reply: reply}
}

func GetNodeStats(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QueryGetNodeStats, Reply: reply}
}

func SubscribeState(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QuerySubscribeState, Reply: reply}
}

func SubscribeStats(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QuerySubscribeStats, Reply: reply}
}

func SubscribeTelemetry(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QuerySubscribeTelemetry, Reply: reply}
}

func ListConnections(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QueryListConnections, Reply: reply}
}

func SubscribeEvents(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QuerySubscribeEvents, Reply: reply}
}

func GetDefinitions(reply chan<- QueryResult) QueryMessage {
	return QueryMessage{Kind: QueryDefinitions, Reply: reply}
}
