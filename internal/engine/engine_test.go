package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"streamkit/internal/bus"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// collector gathers what test sinks received and what params test nodes saw,
// keyed by node name, so assertions can run after the graph has drained.
type collector struct {
	mu     sync.Mutex
	got    map[string][]string
	params map[string][]string
	done   map[string]chan struct{}
}

func newCollector() *collector {
	return &collector{
		got:    make(map[string][]string),
		params: make(map[string][]string),
		done:   make(map[string]chan struct{}),
	}
}

func (c *collector) add(nodeID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got[nodeID] = append(c.got[nodeID], text)
}

func (c *collector) addParams(nodeID string, params json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params[nodeID] = append(c.params[nodeID], string(params))
}

func (c *collector) received(nodeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got[nodeID]))
	copy(out, c.got[nodeID])
	return out
}

func (c *collector) paramUpdates(nodeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.params[nodeID]))
	copy(out, c.params[nodeID])
	return out
}

func (c *collector) doneCh(nodeID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.done[nodeID]
	if !ok {
		ch = make(chan struct{})
		c.done[nodeID] = ch
	}
	return ch
}

// seqSource is a source node emitting Count text packets p0..pN-1 after the
// Start handshake, then stopping as completed.
type seqSource struct {
	node.BaseNode
	count int
	coll  *collector
}

type seqSourceConfig struct {
	Count int `json:"count"`
}

func (s *seqSource) InputPins() []pin.InputPin { return nil }

func (s *seqSource) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.TextType(), Cardinality: pin.Broadcast()}}
}

func (s *seqSource) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())
	if !node.AwaitStart(ctx, nctx, func(p json.RawMessage) { s.coll.addParams(nodeName, p) }) {
		return nil
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())
	var sent uint64
	for i := 0; i < s.count; i++ {
		if err := nctx.Output.Send(ctx, "out", packet.NewTextPacket(fmt.Sprintf("p%d", i))); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
	}
	node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent})
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopCompleted))
	return nil
}

// textSink collects text packets into the shared collector and closes its
// done channel when its input closes.
type textSink struct {
	node.BaseNode
	coll  *collector
	delay time.Duration
}

func (s *textSink) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.TextType()}, Cardinality: pin.One()}}
}

func (s *textSink) OutputPins() []pin.OutputPin { return nil }

func (s *textSink) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())
	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())
	defer close(s.coll.doneCh(nodeName))
	var received uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received})
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		text, _ := pkt.Text()
		s.coll.add(nodeName, text)
		received++
	}
}

// audioProbe declares audio-typed pins without moving data, to exercise
// connect-time type validation.
type audioProbe struct {
	node.BaseNode
	inputs  []pin.InputPin
	outputs []pin.OutputPin
}

func (p *audioProbe) InputPins() []pin.InputPin   { return p.inputs }
func (p *audioProbe) OutputPins() []pin.OutputPin { return p.outputs }

func (p *audioProbe) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	if len(p.inputs) == 0 {
		node.EmitState(nctx.StateTx, nodeName, node.Initializing())
		if !node.AwaitStart(ctx, nctx, nil) {
			return nil
		}
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())
	<-ctx.Done()
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
	return nil
}

func testRegistry(t *testing.T, coll *collector) *registry.Registry {
	t.Helper()
	reg := registry.New()

	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	must(reg.RegisterDynamic("test_source", func(params json.RawMessage) (node.ProcessorNode, error) {
		var cfg seqSourceConfig
		if len(params) > 0 {
			if err := json.Unmarshal(params, &cfg); err != nil {
				return nil, err
			}
		}
		if cfg.Count == 0 {
			cfg.Count = 10
		}
		return &seqSource{count: cfg.Count, coll: coll}, nil
	}, nil, nil, false, "test source"))

	must(reg.RegisterDynamic("test_sink", func(json.RawMessage) (node.ProcessorNode, error) {
		return &textSink{coll: coll}, nil
	}, nil, nil, false, "test sink"))

	must(reg.RegisterDynamic("test_slow_sink", func(json.RawMessage) (node.ProcessorNode, error) {
		return &textSink{coll: coll, delay: 2 * time.Millisecond}, nil
	}, nil, nil, false, "deliberately slow test sink"))

	must(reg.RegisterDynamic("test_dyn_mixer", func(json.RawMessage) (node.ProcessorNode, error) {
		return &dynMixer{coll: coll}, nil
	}, nil, nil, false, "dynamic-pin test mixer"))

	must(reg.RegisterDynamic("test_audio_source", func(json.RawMessage) (node.ProcessorNode, error) {
		return &audioProbe{outputs: []pin.OutputPin{{
			Name:         "out",
			ProducesType: packet.RawAudioType(48000, 2, packet.SampleFormatF32),
			Cardinality:  pin.Broadcast(),
		}}}, nil
	}, nil, nil, false, "audio probe source"))

	must(reg.RegisterDynamic("test_audio_sink_wildcard", func(json.RawMessage) (node.ProcessorNode, error) {
		return &audioProbe{inputs: []pin.InputPin{{
			Name:         "in",
			AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)},
			Cardinality:  pin.One(),
		}}}, nil
	}, nil, nil, false, "audio probe sink, wildcard rate/channels"))

	must(reg.RegisterDynamic("test_audio_sink_s16", func(json.RawMessage) (node.ProcessorNode, error) {
		return &audioProbe{inputs: []pin.InputPin{{
			Name:         "in",
			AcceptsTypes: []packet.PacketType{packet.RawAudioType(48000, 2, packet.SampleFormatS16LE)},
			Cardinality:  pin.One(),
		}}}, nil
	}, nil, nil, false, "audio probe sink, s16le only"))

	return reg
}

func spawnTestEngine(t *testing.T, coll *collector, mutate func(*Config)) *Handle {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SessionID = "test-session"
	if mutate != nil {
		mutate(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle, _ := Spawn(ctx, cfg, testRegistry(t, coll), nil)
	t.Cleanup(func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutCancel()
		_ = handle.Shutdown(shutCtx)
		cancel()
		handle.Join()
	})
	return handle
}

func waitForState(t *testing.T, handle *Handle, nodeID string, want node.StateKind, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last node.NodeState
	for time.Now().Before(deadline) {
		states, err := handle.NodeStates(context.Background())
		if err != nil {
			t.Fatalf("NodeStates: %v", err)
		}
		if st, ok := states[nodeID]; ok {
			last = st
			if st.Kind == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("node %q never reached state %v (last observed: %v %q)", nodeID, want, last.Kind, last.Reason)
}

// TestSourceStartHandshake covers the source-node contract: a node with no
// inputs holds in Ready until Start, then runs and produces data.
func TestSourceStartHandshake(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	if err := handle.AddNode(ctx, "src", "test_source", json.RawMessage(`{"count": 5}`)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	waitForState(t, handle, "src", node.StateReady, time.Second)

	if err := handle.AddNode(ctx, "sink", "test_sink", nil); err != nil {
		t.Fatalf("AddNode sink: %v", err)
	}
	if err := handle.Connect(ctx, "src", "out", "sink", "in", pin.Reliable); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Still parked: nothing may flow before Start.
	time.Sleep(50 * time.Millisecond)
	if got := coll.received("sink"); len(got) != 0 {
		t.Fatalf("sink received %d packets before Start", len(got))
	}

	if err := handle.StartNode(ctx, "src"); err != nil {
		t.Fatalf("StartNode: %v", err)
	}
	waitForState(t, handle, "src", node.StateStopped, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(coll.received("sink")) == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := coll.received("sink")
	if len(got) != 5 {
		t.Fatalf("sink received %d packets, want 5", len(got))
	}
	for i, text := range got {
		if want := fmt.Sprintf("p%d", i); text != want {
			t.Fatalf("packet %d = %q, want %q", i, text, want)
		}
	}
}

// TestReliableFanOutThroughEngine wires one source to three reliable sinks
// and checks every sink sees every packet in production order.
func TestReliableFanOutThroughEngine(t *testing.T) {
	const n = 200
	coll := newCollector()
	handle := spawnTestEngine(t, coll, func(cfg *Config) {
		cfg.NodeInputCapacity = 2
	})
	ctx := context.Background()

	if err := handle.AddNode(ctx, "src", "test_source", json.RawMessage(fmt.Sprintf(`{"count": %d}`, n))); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	sinks := []string{"sink-a", "sink-b", "sink-c"}
	for _, sink := range sinks {
		if err := handle.AddNode(ctx, sink, "test_sink", nil); err != nil {
			t.Fatalf("AddNode %s: %v", sink, err)
		}
		if err := handle.Connect(ctx, "src", "out", sink, "in", pin.Reliable); err != nil {
			t.Fatalf("Connect %s: %v", sink, err)
		}
	}
	if err := handle.StartNode(ctx, "src"); err != nil {
		t.Fatalf("StartNode: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		complete := true
		for _, sink := range sinks {
			if len(coll.received(sink)) < n {
				complete = false
			}
		}
		if complete {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, sink := range sinks {
		got := coll.received(sink)
		if len(got) != n {
			t.Fatalf("%s received %d packets, want %d", sink, len(got), n)
		}
		for i, text := range got {
			if want := fmt.Sprintf("p%d", i); text != want {
				t.Fatalf("%s packet %d = %q, want %q (order violated)", sink, i, text, want)
			}
		}
	}
}

// TestDuplicateConnectRejected covers single-edge input cardinality: the
// second edge into the same One-cardinality pin must fail as a
// configuration error and leave the graph unchanged.
func TestDuplicateConnectRejected(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	for _, id := range []string{"src-a", "src-b"} {
		if err := handle.AddNode(ctx, id, "test_source", nil); err != nil {
			t.Fatalf("AddNode %s: %v", id, err)
		}
	}
	if err := handle.AddNode(ctx, "sink", "test_sink", nil); err != nil {
		t.Fatalf("AddNode sink: %v", err)
	}

	if err := handle.Connect(ctx, "src-a", "out", "sink", "in", pin.Reliable); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	err := handle.Connect(ctx, "src-b", "out", "sink", "in", pin.Reliable)
	if err == nil {
		t.Fatalf("second Connect to a One-cardinality pin succeeded")
	}
	var cfgErr *node.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("second Connect error = %v, want ConfigurationError", err)
	}

	conns, queryErr := handle.Connections(ctx)
	if queryErr != nil {
		t.Fatalf("Connections: %v", queryErr)
	}
	if len(conns) != 1 {
		t.Fatalf("graph has %d connections after rejected connect, want 1", len(conns))
	}
}

// TestConnectWildcardCompatibility covers field-level wildcards: zero
// rate/channels on the input side match any concrete source format, while a
// sample-format mismatch is rejected outright.
func TestConnectWildcardCompatibility(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	if err := handle.AddNode(ctx, "src", "test_audio_source", nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := handle.AddNode(ctx, "wildcard", "test_audio_sink_wildcard", nil); err != nil {
		t.Fatalf("AddNode wildcard: %v", err)
	}
	if err := handle.AddNode(ctx, "s16", "test_audio_sink_s16", nil); err != nil {
		t.Fatalf("AddNode s16: %v", err)
	}

	if err := handle.Connect(ctx, "src", "out", "wildcard", "in", pin.Reliable); err != nil {
		t.Fatalf("wildcard Connect rejected: %v", err)
	}
	err := handle.Connect(ctx, "src", "out", "s16", "in", pin.Reliable)
	if err == nil {
		t.Fatalf("Connect with mismatched sample format succeeded")
	}
	var cfgErr *node.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("mismatch error = %v, want ConfigurationError", err)
	}
}

// TestAddNodeUnknownKind checks the registry miss surfaces as a
// configuration error naming the offending kind.
func TestAddNodeUnknownKind(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)

	err := handle.AddNode(context.Background(), "n", "no_such_kind", nil)
	if err == nil {
		t.Fatalf("AddNode with unknown kind succeeded")
	}
	var cfgErr *node.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
}

// TestRemoveNodeCascades removes a connected node and checks the edge goes
// with it, the snapshot forgets the node, and the event stream carries the
// induced ConnectionRemoved before NodeRemoved.
func TestRemoveNodeCascades(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	events, unsubscribe, err := handle.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("SubscribeEvents: %v", err)
	}
	defer unsubscribe()

	if err := handle.AddNode(ctx, "src", "test_source", nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := handle.AddNode(ctx, "sink", "test_sink", nil); err != nil {
		t.Fatalf("AddNode sink: %v", err)
	}
	if err := handle.Connect(ctx, "src", "out", "sink", "in", pin.Reliable); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := handle.RemoveNode(ctx, "src"); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}

	var sawConnectionRemoved, sawNodeRemoved bool
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case env, ok := <-events:
			if !ok {
				break collect
			}
			switch env.Value.Kind {
			case bus.EventConnectionRemoved:
				sawConnectionRemoved = true
			case bus.EventNodeRemoved:
				if env.Value.NodeID == "src" {
					if !sawConnectionRemoved {
						t.Fatalf("NodeRemoved arrived before the cascading ConnectionRemoved")
					}
					sawNodeRemoved = true
					break collect
				}
			}
		case <-deadline:
			break collect
		}
	}
	if !sawConnectionRemoved || !sawNodeRemoved {
		t.Fatalf("events missing: connection_removed=%v node_removed=%v", sawConnectionRemoved, sawNodeRemoved)
	}

	// The snapshot must not resurrect the removed node even though its task
	// publishes a terminal state while tearing down.
	time.Sleep(50 * time.Millisecond)
	states, err := handle.NodeStates(ctx)
	if err != nil {
		t.Fatalf("NodeStates: %v", err)
	}
	if _, present := states["src"]; present {
		t.Fatalf("removed node still present in state snapshot")
	}

	conns, err := handle.Connections(ctx)
	if err != nil {
		t.Fatalf("Connections: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("%d connections survive node removal, want 0", len(conns))
	}
}

// TestEngineResponsiveUnderBackpressure: a fast source into a deliberately slow reliable sink with tiny
// input capacity. The engine actor must keep answering queries while the
// data path is saturated.
func TestEngineResponsiveUnderBackpressure(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, func(cfg *Config) {
		cfg.NodeInputCapacity = 1
		cfg.PinDistributorCapacity = 1
	})
	ctx := context.Background()

	if err := handle.AddNode(ctx, "src", "test_source", json.RawMessage(`{"count": 5000}`)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := handle.AddNode(ctx, "slow", "test_slow_sink", nil); err != nil {
		t.Fatalf("AddNode slow sink: %v", err)
	}
	if err := handle.Connect(ctx, "src", "out", "slow", "in", pin.Reliable); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := handle.StartNode(ctx, "src"); err != nil {
		t.Fatalf("StartNode: %v", err)
	}

	// Give the path time to saturate, then probe.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		qctx, cancel := context.WithTimeout(ctx, time.Second)
		states, err := handle.NodeStates(qctx)
		cancel()
		if err != nil {
			t.Fatalf("engine unresponsive under backpressure: %v", err)
		}
		if st := states["slow"]; st.Kind != node.StateRunning {
			t.Fatalf("slow sink state = %v, want Running", st.Kind)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st, _ := func() (node.NodeState, error) {
		states, err := handle.NodeStates(ctx)
		return states["src"], err
	}(); st.Kind != node.StateRunning && st.Kind != node.StateReady {
		t.Fatalf("source state = %v, want Running or Ready", st.Kind)
	}
	if len(coll.received("slow")) == 0 {
		t.Fatalf("no packets reached the slow sink")
	}
}

// TestUpdateParamsReachesNode checks live parameter updates land on the
// node's control mailbox.
func TestUpdateParamsReachesNode(t *testing.T) {
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	if err := handle.AddNode(ctx, "src", "test_source", nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	waitForState(t, handle, "src", node.StateReady, time.Second)

	if err := handle.UpdateParams(ctx, "src", json.RawMessage(`{"count": 42}`)); err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(coll.paramUpdates("src")) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	updates := coll.paramUpdates("src")
	if len(updates) != 1 || updates[0] != `{"count": 42}` {
		t.Fatalf("node saw param updates %v, want one update with the sent payload", updates)
	}
}

// TestShutdownStopsSession checks Shutdown tears everything down and the
// handle reports the engine gone afterwards.
func TestShutdownStopsSession(t *testing.T) {
	coll := newCollector()

	cfg := DefaultConfig()
	cfg.SessionID = "shutdown-test"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle, _ := Spawn(ctx, cfg, testRegistry(t, coll), nil)

	if err := handle.AddNode(ctx, "src", "test_source", nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := handle.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	handle.Join()

	if err := handle.AddNode(context.Background(), "late", "test_source", nil); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("AddNode after shutdown = %v, want ErrEngineStopped", err)
	}
}

// dynMixer declares a Dynamic{in} input pin family and wires per-pin readers
// through the pin-management handshake.
type dynMixer struct {
	node.BaseNode
	coll *collector
}

func (m *dynMixer) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.TextType()}, Cardinality: pin.Dynamic("in")}}
}

func (m *dynMixer) OutputPins() []pin.OutputPin { return nil }

func (m *dynMixer) SupportsDynamicPins() bool { return true }

func (m *dynMixer) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case msg, ok := <-nctx.PinMgmtRx:
			if !ok {
				node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
				return nil
			}
			if msg.Kind == node.PinAdd && msg.Rx != nil {
				rx := msg.Rx
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						pkt, ok := nctx.RecvWithCancellation(rx)
						if !ok {
							return
						}
						text, _ := pkt.Text()
						m.coll.add(nodeName, text)
					}
				}()
			}
			if msg.Ack != nil {
				msg.Ack <- nil
			}
		case <-ctx.Done():
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		}
	}
}

// TestDynamicPinFamilyConnect materializes two concrete members of a
// Dynamic{in} input family at connect time, each acknowledged by the node
// before data flows.
func TestDynamicPinFamilyConnect(t *testing.T) {
	const n = 20
	coll := newCollector()
	handle := spawnTestEngine(t, coll, nil)
	ctx := context.Background()

	if err := handle.AddNode(ctx, "mixer", "test_dyn_mixer", nil); err != nil {
		t.Fatalf("AddNode mixer: %v", err)
	}
	for _, src := range []string{"src-a", "src-b"} {
		if err := handle.AddNode(ctx, src, "test_source", json.RawMessage(fmt.Sprintf(`{"count": %d}`, n))); err != nil {
			t.Fatalf("AddNode %s: %v", src, err)
		}
	}
	if err := handle.Connect(ctx, "src-a", "out", "mixer", "in_a", pin.Reliable); err != nil {
		t.Fatalf("Connect in_a: %v", err)
	}
	if err := handle.Connect(ctx, "src-b", "out", "mixer", "in_b", pin.Reliable); err != nil {
		t.Fatalf("Connect in_b: %v", err)
	}
	// A name outside the family must be rejected.
	if err := handle.Connect(ctx, "src-a", "out", "mixer", "side", pin.Reliable); err == nil {
		t.Fatalf("Connect to a pin outside the dynamic family succeeded")
	}

	for _, src := range []string{"src-a", "src-b"} {
		if err := handle.StartNode(ctx, src); err != nil {
			t.Fatalf("StartNode %s: %v", src, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(coll.received("mixer")) == 2*n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(coll.received("mixer")); got != 2*n {
		t.Fatalf("mixer received %d packets, want %d", got, 2*n)
	}
}
