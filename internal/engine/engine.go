package engine

import (
	"context"
	"log"
	"sync"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
	"streamkit/internal/resource"
)

// Engine is the single-writer owner of a session's live graph. All
// fields below are touched only from the actor goroutine started by Spawn;
// every other interaction happens through control/query messages, which is
// what makes the graph's data structures effectively single-threaded.
type Engine struct {
	cfg      Config
	registry *registry.Registry
	resource *resource.Manager
	pool     packet.AudioFramePool

	liveNodes          map[string]*liveNode
	outputDistributors map[string]map[string]*distributorEntry
	connections        map[pin.ConnectionId]pin.Connection

	nodeStates map[string]node.NodeState
	nodeStats  map[string]node.StatsUpdate

	stateBus     *bus.Bus[node.StateUpdate]
	statsBus     *bus.Bus[node.StatsUpdate]
	telemetryBus *bus.Bus[node.TelemetryEvent]
	eventBus     *bus.Bus[bus.Event]

	// sharedStateTx/sharedStatsTx/sharedTelemetryTx are handed to every node
	// context as its StateTx/StatsTx/TelemetryTx: many node goroutines send
	// concurrently, the engine actor is the sole reader, fanning each
	// message out to the corresponding bus and updating its snapshot maps.
	sharedStateTx     chan node.StateUpdate
	sharedStatsTx     chan node.StatsUpdate
	sharedTelemetryTx chan node.TelemetryEvent

	nodeDone chan nodeDoneMsg

	controlRx chan ControlMessage
	queryRx   chan QueryMessage

	wg sync.WaitGroup
}

type nodeDoneMsg struct {
	nodeID string
	err    error
}

// New constructs an Engine. reg and resourceMgr are external collaborators;
// resourceMgr may be nil if no registered node needs shared
// resources.
func New(cfg Config, reg *registry.Registry, resourceMgr *resource.Manager) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: reg,
		resource: resourceMgr,
		pool:     packet.Preallocated[float32](cfg.AudioBucketSizes, cfg.AudioBuffersPerBucket),

		liveNodes:          make(map[string]*liveNode),
		outputDistributors: make(map[string]map[string]*distributorEntry),
		connections:        make(map[pin.ConnectionId]pin.Connection),

		nodeStates: make(map[string]node.NodeState),
		nodeStats:  make(map[string]node.StatsUpdate),

		stateBus:     bus.New[node.StateUpdate](64),
		statsBus:     bus.New[node.StatsUpdate](64),
		telemetryBus: bus.New[node.TelemetryEvent](cfg.TelemetryBufferSize),
		eventBus:     bus.New[bus.Event](64),

		sharedStateTx:     make(chan node.StateUpdate, 256),
		sharedStatsTx:     make(chan node.StatsUpdate, 256),
		sharedTelemetryTx: make(chan node.TelemetryEvent, cfg.TelemetryBufferSize),

		nodeDone: make(chan nodeDoneMsg, 16),

		controlRx: make(chan ControlMessage, cfg.EngineControlCapacity),
		queryRx:   make(chan QueryMessage, cfg.EngineQueryCapacity),
	}
}

// Spawn starts the engine actor goroutine and returns a Handle for external
// collaborators plus the Engine itself. The actor loop runs until ctx is
// canceled or a ControlShutdown message is processed.
func Spawn(ctx context.Context, cfg Config, reg *registry.Registry, resourceMgr *resource.Manager) (*Handle, *Engine) {
	e := New(cfg, reg, resourceMgr)
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.run(ctx)
	}()
	e.eventBus.Publish(bus.SessionCreated(cfg.SessionID))
	return &Handle{e: e, done: done}, e
}

// run is the actor's main loop: control and query messages are
// processed as they arrive; control is biased ahead of query when both are
// ready, so structural mutations never starve behind read traffic.
func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case msg := <-e.controlRx:
			if !e.handleControl(ctx, msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg := <-e.controlRx:
			if !e.handleControl(ctx, msg) {
				return
			}
		case q := <-e.queryRx:
			e.handleQuery(q)
		case update := <-e.sharedStateTx:
			e.applyStateUpdate(update)
		case update := <-e.sharedStatsTx:
			e.applyStatsUpdate(update)
		case event := <-e.sharedTelemetryTx:
			e.telemetryBus.Publish(bus.RedactTelemetry(event, e.cfg.MaxTextChars))
		case d := <-e.nodeDone:
			e.handleNodeDone(d)
		case <-ctx.Done():
			e.shutdownAll(context.Background())
			return
		}
	}
}

func (e *Engine) applyStateUpdate(update node.StateUpdate) {
	// A removed node's terminal transition still reaches subscribers, but
	// must not resurrect its snapshot entry.
	if _, live := e.liveNodes[update.NodeID]; live {
		e.nodeStates[update.NodeID] = update.State
	}
	e.stateBus.Publish(update)
	e.eventBus.Publish(bus.Event{Kind: bus.EventNodeStateChanged, NodeID: update.NodeID, Reason: update.State.Reason})
}

func (e *Engine) applyStatsUpdate(update node.StatsUpdate) {
	if _, live := e.liveNodes[update.NodeID]; live {
		e.nodeStats[update.NodeID] = update
	}
	e.statsBus.Publish(update)
	e.eventBus.Publish(bus.Event{Kind: bus.EventNodeStatsUpdated, NodeID: update.NodeID})
}

// handleNodeDone reacts to a node task's Run() returning, marking it Failed
// if it returned an error. A node that exits on its own (e.g. end of file)
// stays present in liveNodes — still addressable for state queries — until
// RemoveNode or session shutdown tears it out; a node already removed by
// the time its task winds down needs no further bookkeeping.
func (e *Engine) handleNodeDone(d nodeDoneMsg) {
	if _, ok := e.liveNodes[d.nodeID]; !ok {
		return
	}
	if d.err != nil {
		log.Printf("[engine] node %q run loop ended with error: %v", d.nodeID, d.err)
		e.applyStateUpdate(node.NewStateUpdate(d.nodeID, node.Failed(d.err.Error())))
	}
}

// shutdownAll runs the shutdown sequence when the engine's context is
// canceled directly rather than via a ControlShutdown message.
func (e *Engine) shutdownAll(ctx context.Context) {
	e.doShutdown(ctx)
}
