package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"streamkit/internal/bus"
	"streamkit/internal/distributor"
	"streamkit/internal/node"
	"streamkit/internal/packet"
)

// addNode instantiates and spawns one node: validating, with no partial
// state committed to liveNodes until every fallible step has succeeded.
func (e *Engine) addNode(ctx context.Context, nodeID, kind string, params json.RawMessage) error {
	if _, exists := e.liveNodes[nodeID]; exists {
		return node.NewConfigurationError(nodeID, "a node with this id already exists")
	}

	// 1-2: factory lookup + construction.
	inst, err := e.registry.Create(kind, params)
	if err != nil {
		return err
	}

	// 3: Tier-1 initialize().
	initCtx := &node.InitContext{NodeID: nodeID, StateTx: e.sharedStateTx}
	update, err := inst.Initialize(ctx, initCtx)
	if err != nil {
		return node.NewConfigurationError(nodeID, fmt.Sprintf("initialize failed: %v", err))
	}
	inputPins := inst.InputPins()
	outputPins := inst.OutputPins()
	if update.Kind == node.PinUpdateUpdated {
		inputPins = update.Inputs
		outputPins = update.Outputs
	}

	// 4: mailboxes.
	controlTx := make(chan node.ControlMessage, 8)
	var pinMgmtTx chan node.PinManagementMessage
	if inst.SupportsDynamicPins() {
		pinMgmtTx = make(chan node.PinManagementMessage, 4)
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	ln := &liveNode{
		name:             nodeID,
		kind:             kind,
		inst:             inst,
		inputPins:        inputPins,
		outputPins:       outputPins,
		inputSenders:     make(map[string]chan packet.Packet),
		inboundCount:     make(map[string]int),
		dynamicInputPins: make(map[string]bool),
		controlTx:        controlTx,
		pinMgmtTx:        pinMgmtTx,
		cancel:           cancel,
		done:             make(chan error, 1),
	}

	// 5: spawn a distributor per declared output pin.
	directOutputs := make(map[string]chan packet.Packet, len(outputPins))
	distributors := make(map[string]*distributorEntry, len(outputPins))
	for _, op := range outputPins {
		dataCh := make(chan packet.Packet, e.cfg.PinDistributorCapacity)
		configCh := make(chan distributor.ConfigMessage, 8)
		distCtx, distCancel := context.WithCancel(ctx)
		dist := distributor.New(dataCh, configCh, nodeID, op.Name)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			dist.Run(distCtx)
		}()
		directOutputs[op.Name] = dataCh
		distributors[op.Name] = &distributorEntry{dataTx: dataCh, configTx: configCh, cancel: distCancel}
	}

	// 6: bounded receivers for every declared input pin.
	nodeInputs := make(map[string]chan packet.Packet, len(inputPins))
	for _, ip := range inputPins {
		ch := make(chan packet.Packet, e.cfg.NodeInputCapacity)
		nodeInputs[ip.Name] = ch
		ln.inputSenders[ip.Name] = ch
	}

	e.liveNodes[nodeID] = ln
	e.outputDistributors[nodeID] = distributors

	// 7-8: build context, spawn node task. Nodes that emit telemetry build
	// their own bus.Emitter wrapping nctx.TelemetryTx for rate limiting.
	nctx := &node.Context{
		Inputs:      nodeInputs,
		ControlRx:   controlTx,
		Output:      node.NewOutputSender(nodeID, node.OutputRouting{Direct: directOutputs}),
		BatchSize:   e.cfg.PacketBatchSize,
		StateTx:     e.sharedStateTx,
		StatsTx:     e.sharedStatsTx,
		TelemetryTx: e.sharedTelemetryTx,
		SessionID:   e.cfg.SessionID,
		Cancel:      nodeCtx,
		PinMgmtRx:   pinMgmtTx,
		AudioPool:   &e.pool,
	}

	ln.output = nctx.Output
	node.EmitState(e.sharedStateTx, nodeID, node.Initializing())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := inst.Run(nodeCtx, nctx)
		ln.done <- err
		close(ln.done)
		e.nodeDone <- nodeDoneMsg{nodeID: nodeID, err: err}
	}()

	log.Printf("[engine] node %q (%s) added", nodeID, kind)
	e.eventBus.Publish(bus.NodeAdded(nodeID, kind))
	return nil
}
