package wsapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"streamkit/internal/engine"
	"streamkit/internal/pin"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer is the per-connection outbound frame buffer; the engine's
	// buses already lag slow subscribers, so this only absorbs write jitter.
	sendBuffer = 64
)

// Handler owns websocket transport for the control plane: inbound frames
// carry the same commands as the REST routes, outbound frames relay the
// engine's event/state/stats/telemetry buses to whichever streams the
// client subscribed.
type Handler struct {
	handle   *engine.Handle
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to one engine session.
func NewHandler(handle *engine.Handle) *Handler {
	return &Handler{
		handle: handle,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds websocket routes on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	remoteAddr := c.RealIP()
	slog.Debug("ws upgrade request", "remote", remoteAddr)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("ws upgrade failed", "remote", remoteAddr, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn, remoteAddr)
	return nil
}

// wsSession is one connected control-plane client: a writer goroutine
// draining send, plus unsubscribe hooks for whatever streams it attached.
type wsSession struct {
	send chan Message

	mu            sync.Mutex
	unsubscribers map[string]func()
	closed        bool
}

func (s *wsSession) queue(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		// The client is not keeping up with its own subscription volume;
		// dropping here mirrors the buses' own lag discipline.
	}
}

func (s *wsSession) addUnsubscriber(stream string, unsub func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, dup := s.unsubscribers[stream]; dup {
		return false
	}
	s.unsubscribers[stream] = unsub
	return true
}

func (s *wsSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := make([]func(), 0, len(s.unsubscribers))
	for _, unsub := range s.unsubscribers {
		unsubs = append(unsubs, unsub)
	}
	s.unsubscribers = nil
	close(s.send)
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (h *Handler) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(1 << 20)

	session := &wsSession{
		send:          make(chan Message, sendBuffer),
		unsubscribers: make(map[string]func()),
	}
	defer session.close()

	slog.Info("ws connected", "remote", remoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for out := range session.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(out); err != nil {
				slog.Debug("ws write error", "remote", remoteAddr, "type", out.Type, "err", err)
				return
			}
		}
	}()

	for {
		var in Message
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "remote", remoteAddr, "err", err)
			}
			slog.Info("ws disconnected", "remote", remoteAddr)
			return
		}
		slog.Debug("ws recv", "remote", remoteAddr, "type", in.Type, "req_id", in.ReqID)
		h.handleInbound(session, in)
	}
}

func (h *Handler) handleInbound(session *wsSession, in Message) {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	switch in.Type {
	case TypePing:
		session.queue(Message{Type: TypePong, ReqID: in.ReqID, TS: in.TS})

	case TypeAddNode:
		if in.NodeID == "" || in.Kind == "" {
			h.sendError(session, in.ReqID, "node_id and kind are required")
			return
		}
		h.reply(session, in.ReqID, h.handle.AddNode(ctx, in.NodeID, in.Kind, in.Params))

	case TypeRemoveNode:
		if in.NodeID == "" {
			h.sendError(session, in.ReqID, "node_id is required")
			return
		}
		h.reply(session, in.ReqID, h.handle.RemoveNode(ctx, in.NodeID))

	case TypeStartNode:
		if in.NodeID == "" {
			h.sendError(session, in.ReqID, "node_id is required")
			return
		}
		h.reply(session, in.ReqID, h.handle.StartNode(ctx, in.NodeID))

	case TypeConnect:
		mode, err := parseMode(in.Mode)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		h.reply(session, in.ReqID, h.handle.Connect(ctx, in.FromNode, in.FromPin, in.ToNode, in.ToPin, mode))

	case TypeDisconnect:
		if in.ConnectionID == "" {
			h.sendError(session, in.ReqID, "connection_id is required")
			return
		}
		h.reply(session, in.ReqID, h.handle.Disconnect(ctx, pin.ConnectionId(in.ConnectionID)))

	case TypeUpdateParams:
		if in.NodeID == "" {
			h.sendError(session, in.ReqID, "node_id is required")
			return
		}
		h.reply(session, in.ReqID, h.handle.UpdateParams(ctx, in.NodeID, in.Params))

	case TypeShutdown:
		h.reply(session, in.ReqID, h.handle.Shutdown(ctx))

	case TypeGetStates:
		states, err := h.handle.NodeStates(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		session.queue(Message{Type: TypeStates, ReqID: in.ReqID, States: encodeStates(states)})

	case TypeGetStats:
		stats, err := h.handle.NodeStats(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		session.queue(Message{Type: TypeStats, ReqID: in.ReqID, Stats: encodeStatsMap(stats)})

	case TypeGetConnections:
		records, err := h.handle.Connections(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		session.queue(Message{Type: TypeConnections, ReqID: in.ReqID, Connections: encodeConnections(records)})

	case TypeGetDefinitions:
		defs, err := h.handle.Definitions(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		session.queue(Message{Type: TypeDefinitions, ReqID: in.ReqID, Definitions: encodeDefinitions(defs)})

	case TypeSubscribe:
		h.subscribe(ctx, session, in)

	default:
		slog.Warn("ws unknown message type", "type", in.Type)
		h.sendError(session, in.ReqID, "unsupported message type")
	}
}

func (h *Handler) subscribe(ctx context.Context, session *wsSession, in Message) {
	switch in.Stream {
	case StreamState:
		rx, unsub, err := h.handle.SubscribeState(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		if !session.addUnsubscriber(in.Stream, unsub) {
			unsub()
			h.sendError(session, in.ReqID, "already subscribed to "+in.Stream)
			return
		}
		go func() {
			for env := range rx {
				if env.Lagged > 0 {
					session.queue(Message{Type: TypeLagged, Stream: StreamState, Lagged: env.Lagged})
				}
				state := encodeState(env.Value.NodeID, env.Value.State)
				session.queue(Message{Type: TypeNodeState, NodeID: env.Value.NodeID, TS: env.Value.Timestamp.UnixMilli(), State: &state})
			}
		}()

	case StreamStats:
		rx, unsub, err := h.handle.SubscribeStats(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		if !session.addUnsubscriber(in.Stream, unsub) {
			unsub()
			h.sendError(session, in.ReqID, "already subscribed to "+in.Stream)
			return
		}
		go func() {
			for env := range rx {
				if env.Lagged > 0 {
					session.queue(Message{Type: TypeLagged, Stream: StreamStats, Lagged: env.Lagged})
				}
				stats := encodeStats(env.Value)
				session.queue(Message{Type: TypeNodeStats, NodeID: env.Value.NodeID, TS: env.Value.Timestamp.UnixMilli(), NodeStats: &stats})
			}
		}()

	case StreamTelemetry:
		rx, unsub, err := h.handle.SubscribeTelemetry(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		if !session.addUnsubscriber(in.Stream, unsub) {
			unsub()
			h.sendError(session, in.ReqID, "already subscribed to "+in.Stream)
			return
		}
		go func() {
			for env := range rx {
				if env.Lagged > 0 {
					session.queue(Message{Type: TypeLagged, Stream: StreamTelemetry, Lagged: env.Lagged})
				}
				tel := encodeTelemetry(env.Value)
				session.queue(Message{Type: TypeTelemetry, NodeID: env.Value.NodeID, Telemetry: &tel})
			}
		}()

	case StreamEvents:
		rx, unsub, err := h.handle.SubscribeEvents(ctx)
		if err != nil {
			h.sendError(session, in.ReqID, err.Error())
			return
		}
		if !session.addUnsubscriber(in.Stream, unsub) {
			unsub()
			h.sendError(session, in.ReqID, "already subscribed to "+in.Stream)
			return
		}
		go func() {
			for env := range rx {
				if env.Lagged > 0 {
					session.queue(Message{Type: TypeLagged, Stream: StreamEvents, Lagged: env.Lagged})
				}
				event := encodeEvent(env.Value)
				session.queue(Message{Type: TypeEvent, Event: &event})
			}
		}()

	default:
		h.sendError(session, in.ReqID, fmt.Sprintf("unknown stream %q", in.Stream))
		return
	}

	session.queue(Message{Type: TypeOK, ReqID: in.ReqID, Stream: in.Stream})
}

func (h *Handler) reply(session *wsSession, reqID string, err error) {
	if err != nil {
		h.sendError(session, reqID, err.Error())
		return
	}
	session.queue(Message{Type: TypeOK, ReqID: reqID})
}

func (h *Handler) sendError(session *wsSession, reqID, errMsg string) {
	slog.Debug("ws sending error", "req_id", reqID, "error", errMsg)
	session.queue(Message{Type: TypeError, ReqID: reqID, Error: errMsg})
}
