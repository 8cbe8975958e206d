// Package wsapi is the thin external control-plane adapter: it serializes
// the engine's control/query surface and event buses over HTTP and
// websocket. It is deliberately not load-bearing for engine correctness —
// every operation here is a plain Handle call an embedding program could
// make directly.
package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamkit/internal/engine"
	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// controlTimeout bounds how long a REST handler waits on the engine actor
// before giving up on the request.
const controlTimeout = 5 * time.Second

// Server is the Echo application.
type Server struct {
	echo   *echo.Echo
	handle *engine.Handle
}

// New constructs an Echo app with websocket + REST routes over one engine
// session.
func New(handle *engine.Handle) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, handle: handle}
	s.registerRoutes()
	return s
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path

			// Skip noisy endpoints at debug level.
			if path == "/ws" || path == "/health" || path == "/metrics" {
				slog.Debug("http request",
					"method", req.Method,
					"path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			} else {
				slog.Info("http request",
					"method", req.Method,
					"path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/api/definitions", s.handleDefinitions)
	s.echo.GET("/api/packet-types", s.handlePacketTypes)
	s.echo.GET("/api/states", s.handleStates)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/api/connections", s.handleConnections)

	s.echo.POST("/api/nodes", s.handleAddNode)
	s.echo.DELETE("/api/nodes/:id", s.handleRemoveNode)
	s.echo.POST("/api/nodes/:id/params", s.handleUpdateParams)
	s.echo.POST("/api/nodes/:id/start", s.handleStartNode)
	s.echo.POST("/api/connections", s.handleConnect)
	s.echo.DELETE("/api/connections/:id", s.handleDisconnect)

	NewHandler(s.handle).Register(s.echo)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Nodes  int    `json:"nodes"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	states, err := s.handle.NodeStates(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Nodes: len(states)})
}

func (s *Server) handleDefinitions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	defs, err := s.handle.Definitions(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, encodeDefinitions(defs))
}

func (s *Server) handlePacketTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, packet.DescribeTypes())
}

func (s *Server) handleStates(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	states, err := s.handle.NodeStates(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, encodeStates(states))
}

func (s *Server) handleStats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	stats, err := s.handle.NodeStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, encodeStatsMap(stats))
}

func (s *Server) handleConnections(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	records, err := s.handle.Connections(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, encodeConnections(records))
}

type addNodeRequest struct {
	NodeID string          `json:"node_id"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (s *Server) handleAddNode(c echo.Context) error {
	var req addNodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
	}
	if strings.TrimSpace(req.NodeID) == "" || strings.TrimSpace(req.Kind) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node_id and kind are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.AddNode(ctx, req.NodeID, req.Kind, req.Params); err != nil {
		return controlError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"node_id": req.NodeID})
}

func (s *Server) handleRemoveNode(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.RemoveNode(ctx, id); err != nil {
		return controlError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStartNode(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.StartNode(ctx, id); err != nil {
		return controlError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateParams(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	var params json.RawMessage
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("decode params: %v", err))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.UpdateParams(ctx, id, params); err != nil {
		return controlError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type connectRequest struct {
	FromNode string `json:"from_node"`
	FromPin  string `json:"from_pin"`
	ToNode   string `json:"to_node"`
	ToPin    string `json:"to_pin"`
	Mode     string `json:"mode,omitempty"`
}

func (s *Server) handleConnect(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.Connect(ctx, req.FromNode, req.FromPin, req.ToNode, req.ToPin, mode); err != nil {
		return controlError(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleDisconnect(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "connection id is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), controlTimeout)
	defer cancel()
	if err := s.handle.Disconnect(ctx, pin.ConnectionId(id)); err != nil {
		return controlError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// controlError maps the node-boundary error taxonomy onto HTTP status
// codes: structurally-wrong input is the caller's fault, everything else is
// the server's.
func controlError(err error) error {
	var cfgErr *node.ConfigurationError
	if errors.As(err, &cfgErr) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, engine.ErrEngineStopped) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseMode(mode string) (pin.ConnectionMode, error) {
	switch mode {
	case "", "reliable":
		return pin.Reliable, nil
	case "best_effort":
		return pin.BestEffort, nil
	default:
		return pin.Reliable, fmt.Errorf("unknown connection mode %q", mode)
	}
}
