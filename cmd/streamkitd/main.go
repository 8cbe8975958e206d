package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"streamkit/internal/engine"
	"streamkit/internal/nodes/audio"
	"streamkit/internal/nodes/core"
	"streamkit/internal/nodes/transport"
	"streamkit/internal/registry"
	"streamkit/internal/resource"
	"streamkit/internal/wsapi"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP/WebSocket listen address")
	sessionID := flag.String("session-id", "", "session identifier (random if empty)")
	batchSize := flag.Int("batch-size", 32, "greedy receive batch hint handed to nodes")
	inputCapacity := flag.Int("input-capacity", 128, "bounded capacity per node input pin")
	distributorCapacity := flag.Int("distributor-capacity", 64, "bounded capacity of each output pin's distributor channel")
	maxTextChars := flag.Int("max-text-chars", 100, "truncation limit for outbound telemetry strings")
	telemetryBuffer := flag.Int("telemetry-buffer", 100, "telemetry fan-in channel capacity")
	shutdownDeadline := flag.Duration("shutdown-deadline", 500*time.Millisecond, "how long to wait for nodes to stop before aborting them")
	resourceBudget := flag.Int64("resource-budget", 0, "resource cache memory budget in bytes (0 keeps everything loaded)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	reg := registry.New()
	if err := core.Register(reg); err != nil {
		log.Fatalf("[registry] %v", err)
	}
	if err := audio.Register(reg); err != nil {
		log.Fatalf("[registry] %v", err)
	}
	if err := transport.Register(reg); err != nil {
		log.Fatalf("[registry] %v", err)
	}

	policy := resource.DefaultPolicy()
	if *resourceBudget > 0 {
		policy = resource.Policy{MaxMemoryBytes: *resourceBudget}
	}
	resources := resource.New(policy)

	cfg := engine.DefaultConfig()
	cfg.PacketBatchSize = *batchSize
	cfg.NodeInputCapacity = *inputCapacity
	cfg.PinDistributorCapacity = *distributorCapacity
	cfg.MaxTextChars = *maxTextChars
	cfg.TelemetryBufferSize = *telemetryBuffer
	cfg.ShutdownDeadline = *shutdownDeadline
	cfg.SessionID = *sessionID
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, _ := engine.Spawn(ctx, cfg, reg, resources)
	log.Printf("[streamkitd] session %q started, listening on %s", cfg.SessionID, *addr)

	server := wsapi.New(handle)
	if err := server.Run(ctx, *addr); err != nil {
		log.Fatalf("[streamkitd] %v", err)
	}

	// The signal canceled ctx; the engine actor saw the same cancellation and
	// is tearing the session down. Wait for it so node shutdown completes
	// before the process exits.
	handle.Join()
	log.Printf("[streamkitd] session %q stopped", cfg.SessionID)
}
