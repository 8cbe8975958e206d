package node

import (
	"context"
	"encoding/json"
)

// ControlKind identifies which ControlMessage variant a value holds.
type ControlKind int

const (
	ControlStart ControlKind = iota
	ControlUpdateParams
	ControlShutdown
)

// ControlMessage is sent on a node's control mailbox. Nodes must accept
// UpdateParams even if they choose to no-op on it.
type ControlMessage struct {
	Kind   ControlKind
	Params json.RawMessage // meaningful iff Kind == ControlUpdateParams
}

func StartMessage() ControlMessage    { return ControlMessage{Kind: ControlStart} }
func ShutdownMessage() ControlMessage { return ControlMessage{Kind: ControlShutdown} }
func UpdateParamsMessage(params json.RawMessage) ControlMessage {
	return ControlMessage{Kind: ControlUpdateParams, Params: params}
}

// AwaitStart parks a source node in Ready until Start arrives on its control
// mailbox, so nothing is produced before downstream distributors and
// subscribers have attached. It returns false if the node should exit
// instead: Shutdown received, the control mailbox closed, or the
// cancellation signal fired. UpdateParams messages received while parked are
// passed to onParams (which may be nil to ignore them).
func AwaitStart(ctx context.Context, nctx *Context, onParams func(json.RawMessage)) bool {
	nodeName := nctx.Output.NodeName()
	EmitState(nctx.StateTx, nodeName, Ready())
	var cancel <-chan struct{}
	if ctx != nil {
		cancel = ctx.Done()
	} else if nctx.Cancel != nil {
		cancel = nctx.Cancel.Done()
	}
	for {
		select {
		case msg, ok := <-nctx.ControlRx:
			if !ok {
				EmitState(nctx.StateTx, nodeName, Stopped(StopShutdown))
				return false
			}
			switch msg.Kind {
			case ControlStart:
				return true
			case ControlShutdown:
				EmitState(nctx.StateTx, nodeName, Stopped(StopShutdown))
				return false
			case ControlUpdateParams:
				if onParams != nil {
					onParams(msg.Params)
				}
			}
		case <-cancel:
			EmitState(nctx.StateTx, nodeName, Stopped(StopShutdown))
			return false
		}
	}
}
