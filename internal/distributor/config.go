package distributor

import (
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// ConfigKind identifies which ConfigMessage variant a value holds.
type ConfigKind int

const (
	ConfigAddConnection ConfigKind = iota
	ConfigRemoveConnection
	ConfigShutdown
)

// ConfigMessage is sent on a distributor's config channel (control plane).
// The run loop always drains these ahead of data, so Connect/Disconnect take
// effect before any packet already in flight is distributed under the old
// topology.
type ConfigMessage struct {
	Kind ConfigKind
	ID   pin.ConnectionId
	Tx   chan<- packet.Packet
	Mode pin.ConnectionMode
}

func AddConnection(id pin.ConnectionId, tx chan<- packet.Packet, mode pin.ConnectionMode) ConfigMessage {
	return ConfigMessage{Kind: ConfigAddConnection, ID: id, Tx: tx, Mode: mode}
}

func RemoveConnection(id pin.ConnectionId) ConfigMessage {
	return ConfigMessage{Kind: ConfigRemoveConnection, ID: id}
}

func Shutdown() ConfigMessage {
	return ConfigMessage{Kind: ConfigShutdown}
}
