// Package oneshot implements the stateless oneshot runner: a linear,
// run-to-completion variant of the dynamic engine for request/response
// pipelines (a client streams bytes in, the pipeline streams bytes out).
// Nodes are wired with OutputRouting::Direct only — no distributor actors,
// no live reconfiguration — but share the same ProcessorNode contract, pin
// model, and type/cardinality validation as the dynamic engine.
package oneshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// NodeSpec describes one node to instantiate in a linear pipeline.
type NodeSpec struct {
	ID     string
	Kind   string
	Params json.RawMessage
}

// EdgeSpec describes one static wire in a linear pipeline, resolved once at
// Build time; there is no Connect/Disconnect here, the graph is fixed for
// the pipeline's lifetime.
type EdgeSpec struct {
	FromNode string
	FromPin  string
	ToNode   string
	ToPin    string
}

// Config holds the oneshot runner's tunables, mirroring the dynamic
// engine's but scoped to a single pipeline instance rather than a session.
type Config struct {
	InputCapacity    int
	BatchSize        int
	ShutdownDeadline time.Duration
}

// DefaultConfig returns the documented defaults, scaled down for a
// single-pipeline lifetime rather than a whole session.
func DefaultConfig() Config {
	return Config{InputCapacity: 64, BatchSize: 32, ShutdownDeadline: 500 * time.Millisecond}
}

type pipelineNode struct {
	name       string
	inst       node.ProcessorNode
	inputPins  []pin.InputPin
	outputPins []pin.OutputPin
	// inputs holds the same channel given to the node's Context.Inputs, kept
	// here so Build can wire an upstream Direct output into it.
	inputs map[string]chan packet.Packet
	// outboundCount enforces CheckSingleOutboundEdge per output pin.
	outboundCount map[string]int
	controlTx     chan node.ControlMessage
	done          chan error
}

// Pipeline is one built, running linear graph. A single external writer
// feeds the ingress pin; a single external reader drains the egress pin.
type Pipeline struct {
	cfg   Config
	nodes map[string]*pipelineNode

	ingressTx chan packet.Packet
	egressRx  chan packet.Packet

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu      sync.Mutex
	lastErr error
}

// Build validates, wires, and spawns a linear pipeline. ingressNode/
// ingressPin name the node and pin the caller will Write packets into;
// egressNode/egressPin name the node and pin the caller will Read packets
// from. Build fails fast on any invalid edge — it commits nothing (spawns no
// goroutines) until every edge has been validated.
func Build(ctx context.Context, reg *registry.Registry, specs []NodeSpec, edges []EdgeSpec, ingressNode, ingressPin, egressNode, egressPin string, cfg Config) (*Pipeline, error) {
	if cfg.InputCapacity <= 0 {
		cfg = DefaultConfig()
	}

	nodes := make(map[string]*pipelineNode, len(specs))
	for _, spec := range specs {
		if _, dup := nodes[spec.ID]; dup {
			return nil, fmt.Errorf("oneshot: duplicate node id %q", spec.ID)
		}
		inst, err := reg.Create(spec.Kind, spec.Params)
		if err != nil {
			return nil, err
		}
		initCtx := &node.InitContext{NodeID: spec.ID}
		update, err := inst.Initialize(ctx, initCtx)
		if err != nil {
			return nil, node.NewConfigurationError(spec.ID, fmt.Sprintf("initialize failed: %v", err))
		}
		inputPins := inst.InputPins()
		outputPins := inst.OutputPins()
		if update.Kind == node.PinUpdateUpdated {
			inputPins = update.Inputs
			outputPins = update.Outputs
		}
		pn := &pipelineNode{
			name:          spec.ID,
			inst:          inst,
			inputPins:     inputPins,
			outputPins:    outputPins,
			inputs:        make(map[string]chan packet.Packet, len(inputPins)),
			outboundCount: make(map[string]int, len(outputPins)),
			controlTx:     make(chan node.ControlMessage, 4),
			done:          make(chan error, 1),
		}
		for _, ip := range inputPins {
			pn.inputs[ip.Name] = make(chan packet.Packet, cfg.InputCapacity)
		}
		nodes[spec.ID] = pn
	}

	// Passthrough resolution: fix-point over declared
	// output types before validating edges against them.
	resolvePassthroughTypes(nodes, edges)

	directOutputs := make(map[string]map[string]chan packet.Packet, len(nodes))
	for id := range nodes {
		directOutputs[id] = make(map[string]chan packet.Packet)
	}

	// Cardinality is a property of the pin as a whole, so it is checked once
	// per (node, pin) against the TOTAL inbound edge count rather than
	// per-edge.
	inboundTotals := make(map[string]map[string]int)
	for _, e := range edges {
		if inboundTotals[e.ToNode] == nil {
			inboundTotals[e.ToNode] = make(map[string]int)
		}
		inboundTotals[e.ToNode][e.ToPin]++
	}
	for nodeID, pinCounts := range inboundTotals {
		dst, ok := nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("oneshot: edge references unknown node %q", nodeID)
		}
		for pinName, count := range pinCounts {
			dstPin, ok := pin.ResolveDynamicInputPin(dst.inputPins, pinName)
			if !ok {
				return nil, fmt.Errorf("oneshot: node %q has no input pin %q", nodeID, pinName)
			}
			if err := pin.CheckInboundCardinality(pinName, dstPin.Cardinality, count-1); err != nil {
				return nil, node.NewConfigurationError(nodeID, err.Error())
			}
		}
	}

	for _, e := range edges {
		src, ok := nodes[e.FromNode]
		if !ok {
			return nil, fmt.Errorf("oneshot: edge references unknown node %q", e.FromNode)
		}
		dst, ok := nodes[e.ToNode]
		if !ok {
			return nil, fmt.Errorf("oneshot: edge references unknown node %q", e.ToNode)
		}
		srcPin, ok := findOutputPin(src.outputPins, e.FromPin)
		if !ok {
			return nil, fmt.Errorf("oneshot: node %q has no output pin %q", e.FromNode, e.FromPin)
		}
		// Unlike the dynamic engine, which accepts Passthrough optimistically
		// and validates once data flows, a linear pipeline has the whole
		// graph in hand: a source pin still unresolved after the fix-point
		// pass can never be type-checked, so the edge is rejected outright.
		if srcPin.ProducesType.Kind == packet.TypePassthrough {
			return nil, node.NewConfigurationError(e.FromNode, fmt.Sprintf(
				"output pin %q did not resolve to a concrete type", e.FromPin))
		}
		dstPin, ok := pin.ResolveDynamicInputPin(dst.inputPins, e.ToPin)
		if !ok {
			return nil, fmt.Errorf("oneshot: node %q has no input pin %q", e.ToNode, e.ToPin)
		}
		if !acceptsAny(srcPin.ProducesType, dstPin.AcceptsTypes) {
			return nil, node.NewConfigurationError(e.ToNode, fmt.Sprintf(
				"output %s.%s is not compatible with input %s.%s", e.FromNode, e.FromPin, e.ToNode, e.ToPin))
		}
		src.outboundCount[e.FromPin]++
		if err := pin.CheckSingleOutboundEdge(e.FromNode, e.FromPin, src.outboundCount[e.FromPin]); err != nil {
			return nil, node.NewConfigurationError(e.FromNode, err.Error())
		}

		destCh, ok := dst.inputs[e.ToPin]
		if !ok {
			// Dynamic input pin family member not materialized by Initialize:
			// the oneshot runner has no pin-management handshake (it has no
			// live reconfiguration to justify one), so it materializes the
			// channel directly.
			destCh = make(chan packet.Packet, cfg.InputCapacity)
			dst.inputs[e.ToPin] = destCh
		}
		directOutputs[e.FromNode][e.FromPin] = destCh
	}

	ingress, ok := nodes[ingressNode]
	if !ok {
		return nil, fmt.Errorf("oneshot: unknown ingress node %q", ingressNode)
	}
	ingressCh, ok := ingress.inputs[ingressPin]
	if !ok {
		ingressCh = make(chan packet.Packet, cfg.InputCapacity)
		ingress.inputs[ingressPin] = ingressCh
	}

	_, ok = nodes[egressNode]
	if !ok {
		return nil, fmt.Errorf("oneshot: unknown egress node %q", egressNode)
	}
	egressCh := make(chan packet.Packet, cfg.InputCapacity)
	directOutputs[egressNode][egressPin] = egressCh

	pipelineCtx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		cfg:       cfg,
		nodes:     nodes,
		ingressTx: ingressCh,
		egressRx:  egressCh,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	for id, pn := range nodes {
		nctx := &node.Context{
			Inputs:    pn.inputs,
			ControlRx: pn.controlTx,
			Output:    node.NewOutputSender(id, node.OutputRouting{Direct: directOutputs[id]}),
			BatchSize: cfg.BatchSize,
			Cancel:    pipelineCtx,
		}
		pn := pn
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := pn.inst.Run(pipelineCtx, nctx)
			select {
			case pn.done <- err:
			default:
			}
			if err != nil {
				p.recordErr(err)
			}
		}()
		if len(pn.inputPins) == 0 {
			pn.controlTx <- node.StartMessage()
		}
	}

	go func() {
		<-p.done
		cancel()
	}()

	// End-of-stream for the external reader: every sender into egressCh is a
	// node goroutine, so once they have all exited the channel can be closed.
	go func() {
		p.wg.Wait()
		close(egressCh)
	}()

	return p, nil
}

func (p *Pipeline) recordErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr == nil {
		p.lastErr = err
	}
}

// Write feeds one packet into the pipeline's ingress pin.
func (p *Pipeline) Write(ctx context.Context, pkt packet.Packet) error {
	select {
	case p.ingressTx <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseIngress signals end-of-stream to the ingress node by closing its
// input channel — the node's Run loop observes the closed channel the same
// way it would observe a node whose upstream has shut down.
func (p *Pipeline) CloseIngress() {
	defer func() { recover() }()
	close(p.ingressTx)
}

// Read pulls the next packet produced at the egress pin, or (zero, false,
// nil) once the pipeline has finished producing output.
func (p *Pipeline) Read(ctx context.Context) (packet.Packet, bool, error) {
	select {
	case pkt, ok := <-p.egressRx:
		return pkt, ok, nil
	case <-ctx.Done():
		return packet.Packet{}, false, ctx.Err()
	}
}

// Close tears the pipeline down: every node's control mailbox is closed for
// cooperative shutdown, with stragglers past cfg.ShutdownDeadline aborted by
// canceling the pipeline's own context. Close blocks until every node task
// has exited (or been aborted) and returns the first node error observed,
// if any.
func (p *Pipeline) Close() error {
	for _, pn := range p.nodes {
		closeControlSafe(pn.controlTx)
	}

	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(p.cfg.ShutdownDeadline):
		log.Printf("[oneshot] pipeline did not stop within shutdown deadline, aborting")
		p.cancel()
		<-waitDone
	}

	close(p.done)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func closeControlSafe(ch chan node.ControlMessage) {
	defer func() { recover() }()
	close(ch)
}

func findOutputPin(pins []pin.OutputPin, name string) (pin.OutputPin, bool) {
	for _, p := range pins {
		if p.Name == name {
			return p, true
		}
		if p.Cardinality.MatchesDynamicName(name) {
			return p, true
		}
	}
	return pin.OutputPin{}, false
}

func acceptsAny(out packet.PacketType, accepted []packet.PacketType) bool {
	for _, in := range accepted {
		if packet.AcceptsAtConnectTime(out, in) {
			return true
		}
	}
	return false
}

// resolvePassthroughTypes runs the fix-point Passthrough resolution pass
// over the pipeline's declared output types before edge validation,
// so a chain of Passthrough nodes (e.g. a generic tee) resolves to the
// concrete type flowing through it.
func resolvePassthroughTypes(nodes map[string]*pipelineNode, edges []EdgeSpec) {
	g := pin.GraphTypes{
		Outputs:      make(map[string]map[string]packet.PacketType, len(nodes)),
		PrimaryInput: make(map[string]string, len(nodes)),
	}
	for id, pn := range nodes {
		outs := make(map[string]packet.PacketType, len(pn.outputPins))
		for _, op := range pn.outputPins {
			outs[op.Name] = op.ProducesType
		}
		g.Outputs[id] = outs
		if len(pn.inputPins) > 0 {
			g.PrimaryInput[id] = pn.inputPins[0].Name
		}
	}
	pinEdges := make([]pin.Edge, 0, len(edges))
	for _, e := range edges {
		pinEdges = append(pinEdges, pin.Edge{FromNode: e.FromNode, FromPin: e.FromPin, ToNode: e.ToNode, ToPin: e.ToPin})
	}
	unresolved := pin.ResolvePassthrough(g, pinEdges)
	for _, u := range unresolved {
		log.Printf("[oneshot] output pin %s.%s left unresolved as Passthrough after fix-point iteration", u.Node, u.Pin)
	}
	for id, pn := range nodes {
		outs := g.Outputs[id]
		for i, op := range pn.outputPins {
			if resolved, ok := outs[op.Name]; ok {
				pn.outputPins[i].ProducesType = resolved
			}
		}
	}
}
