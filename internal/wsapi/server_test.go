package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"streamkit/internal/engine"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// relayNode is a minimal pass-through node so API tests can build a small
// real graph.
type relayNode struct {
	node.BaseNode
	source bool
}

func (n *relayNode) InputPins() []pin.InputPin {
	if n.source {
		return nil
	}
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (n *relayNode) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.TextType(), Cardinality: pin.Broadcast()}}
}

func (n *relayNode) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())
	if n.source {
		if !node.AwaitStart(ctx, nctx, nil) {
			return nil
		}
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())
	<-ctx.Done()
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Handle) {
	t.Helper()
	reg := registry.New()
	if err := reg.RegisterDynamic("relay_source", func(json.RawMessage) (node.ProcessorNode, error) {
		return &relayNode{source: true}, nil
	}, nil, nil, false, "test source"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterDynamic("relay_sink", func(json.RawMessage) (node.ProcessorNode, error) {
		return &relayNode{}, nil
	}, nil, nil, false, "test sink"); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.SessionID = "wsapi-test"
	ctx, cancel := context.WithCancel(context.Background())
	handle, _ := engine.Spawn(ctx, cfg, reg, nil)

	server := New(handle)
	ts := httptest.NewServer(server.Echo())
	t.Cleanup(func() {
		ts.Close()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutCancel()
		_ = handle.Shutdown(shutCtx)
		cancel()
		handle.Join()
	})
	return ts, handle
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
}

func TestRESTAddConnectAndQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/nodes", `{"node_id": "src", "kind": "relay_source"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add src status = %d, want 201", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/nodes", `{"node_id": "dst", "kind": "relay_sink"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add dst status = %d, want 201", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/connections", `{"from_node": "src", "from_pin": "out", "to_node": "dst", "to_pin": "in", "mode": "best_effort"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("connect status = %d, want 201", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/connections")
	if err != nil {
		t.Fatalf("GET /api/connections: %v", err)
	}
	var conns []ConnectionInfo
	if err := json.NewDecoder(resp.Body).Decode(&conns); err != nil {
		t.Fatalf("decode connections: %v", err)
	}
	resp.Body.Close()
	if len(conns) != 1 || conns[0].FromNode != "src" || conns[0].Mode != "best_effort" {
		t.Fatalf("connections = %+v", conns)
	}
	if conns[0].ID == "" {
		t.Fatalf("connection listed without an id")
	}

	// Disconnect by the listed id.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/connections/"+conns[0].ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE connection: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("disconnect status = %d, want 204", resp.StatusCode)
	}
}

func TestRESTRejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/nodes", `{"node_id": "x", "kind": "no_such_kind"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/nodes", `{"kind": "relay_sink"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing node_id status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/connections", `{"from_node": "a", "from_pin": "out", "to_node": "b", "to_pin": "in", "mode": "wat"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", resp.StatusCode)
	}
}

func TestPacketTypesEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/packet-types")
	if err != nil {
		t.Fatalf("GET /api/packet-types: %v", err)
	}
	defer resp.Body.Close()
	var types []packet.TypeDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types) != 8 {
		t.Fatalf("%d packet types described, want 8", len(types))
	}
}

func TestWebSocketControlAndEvents(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Subscribe to graph events first so the add is observed.
	if err := conn.WriteJSON(Message{Type: TypeSubscribe, ReqID: "r1", Stream: StreamEvents}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var sub Message
	if err := conn.ReadJSON(&sub); err != nil {
		t.Fatalf("read subscribe reply: %v", err)
	}
	if sub.Type != TypeOK || sub.ReqID != "r1" {
		t.Fatalf("subscribe reply = %+v", sub)
	}

	if err := conn.WriteJSON(Message{Type: TypeAddNode, ReqID: "r2", NodeID: "src", Kind: "relay_source"}); err != nil {
		t.Fatalf("write add_node: %v", err)
	}

	var sawOK, sawNodeAdded bool
	for !sawOK || !sawNodeAdded {
		var in Message
		if err := conn.ReadJSON(&in); err != nil {
			t.Fatalf("read: %v (ok=%v nodeAdded=%v)", err, sawOK, sawNodeAdded)
		}
		switch {
		case in.Type == TypeOK && in.ReqID == "r2":
			sawOK = true
		case in.Type == TypeError && in.ReqID == "r2":
			t.Fatalf("add_node failed: %s", in.Error)
		case in.Type == TypeEvent && in.Event != nil && in.Event.Kind == "node_added":
			if in.Event.NodeID != "src" {
				t.Fatalf("node_added for %q, want src", in.Event.NodeID)
			}
			sawNodeAdded = true
		}
	}

	// A state query over the same socket.
	if err := conn.WriteJSON(Message{Type: TypeGetStates, ReqID: "r3"}); err != nil {
		t.Fatalf("write get_states: %v", err)
	}
	for {
		var in Message
		if err := conn.ReadJSON(&in); err != nil {
			t.Fatalf("read states: %v", err)
		}
		if in.Type == TypeStates && in.ReqID == "r3" {
			if _, ok := in.States["src"]; !ok {
				t.Fatalf("states missing src: %+v", in.States)
			}
			break
		}
	}
}
