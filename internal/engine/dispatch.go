package engine

import "context"

// handleControl applies one control message, replying on msg.Reply if set.
// It returns false iff the engine should stop its run loop (Shutdown).
func (e *Engine) handleControl(ctx context.Context, msg ControlMessage) bool {
	switch msg.Kind {
	case ControlAddNode:
		reply(msg.Reply, e.addNode(ctx, msg.NodeID, msg.NodeKind, msg.Params))
	case ControlRemoveNode:
		reply(msg.Reply, e.removeNode(msg.NodeID, "removed"))
	case ControlConnect:
		reply(msg.Reply, e.connect(ctx, msg.FromNode, msg.FromPin, msg.ToNode, msg.ToPin, msg.Mode))
	case ControlDisconnect:
		reply(msg.Reply, e.disconnect(msg.ConnectionID, "disconnected"))
	case ControlUpdateParams:
		reply(msg.Reply, e.updateParams(msg.NodeID, msg.Params))
	case ControlStartNode:
		reply(msg.Reply, e.startNode(msg.NodeID))
	case ControlShutdown:
		e.doShutdown(ctx)
		reply(msg.Reply, nil)
		return false
	}
	return true
}

func reply(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (e *Engine) handleQuery(q QueryMessage) {
	var result QueryResult
	switch q.Kind {
	case QueryGetNodeStates:
		result.NodeStates = e.snapshotStates()
	case QueryGetNodeStats:
		result.NodeStats = e.snapshotStats()
	case QuerySubscribeState:
		ch, unsub := e.stateBus.Subscribe()
		result.StateSub, result.Unsubscribe = ch, unsub
	case QuerySubscribeStats:
		ch, unsub := e.statsBus.Subscribe()
		result.StatsSub, result.Unsubscribe = ch, unsub
	case QuerySubscribeTelemetry:
		ch, unsub := e.telemetryBus.Subscribe()
		result.TelemetrySub, result.Unsubscribe = ch, unsub
	case QuerySubscribeEvents:
		ch, unsub := e.eventBus.Subscribe()
		result.EventSub, result.Unsubscribe = ch, unsub
	case QueryListConnections:
		result.Connections = e.snapshotConnections()
	case QueryDefinitions:
		result.Definitions = e.registry.Definitions()
	}
	if q.Reply != nil {
		select {
		case q.Reply <- result:
		default:
		}
	}
}
