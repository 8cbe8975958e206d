// skit-loadtest drives an in-process engine session the same way an
// external controller would: add nodes, connect edges, start sources, poll
// stats, tear down. It lives outside the core on purpose — nothing here is
// load-bearing for engine correctness.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"streamkit/internal/engine"
	"streamkit/internal/node"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

func main() {
	sources := flag.Int("sources", 4, "number of synthetic tone sources")
	fanout := flag.Int("fanout", 3, "sinks connected to each source's output")
	mode := flag.String("mode", "reliable", "connection mode: reliable or best_effort")
	sinkDelay := flag.Int("sink-delay-ms", 0, "per-packet delay at each sink, to provoke backpressure")
	frameMs := flag.Int("frame-ms", 20, "tone frame duration in milliseconds")
	duration := flag.Duration("duration", 10*time.Second, "how long to run the scenario")
	reportInterval := flag.Duration("report-interval", 2*time.Second, "interval between progress reports")
	inputCapacity := flag.Int("input-capacity", 128, "bounded capacity per sink input pin")
	flag.Parse()

	connMode := pin.Reliable
	switch *mode {
	case "reliable":
	case "best_effort":
		connMode = pin.BestEffort
	default:
		log.Fatalf("[loadtest] unknown mode %q", *mode)
	}

	reg := registry.New()
	if err := registerLoadNodes(reg); err != nil {
		log.Fatalf("[loadtest] %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.NodeInputCapacity = *inputCapacity
	cfg.SessionID = "loadtest"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, _ := engine.Spawn(ctx, cfg, reg, nil)

	sourceParams := []byte(fmt.Sprintf(`{"frame_ms": %d}`, *frameMs))
	sinkParams := []byte(fmt.Sprintf(`{"delay_ms": %d}`, *sinkDelay))

	start := time.Now()
	for i := 0; i < *sources; i++ {
		src := fmt.Sprintf("source-%d", i)
		if err := handle.AddNode(ctx, src, "loadgen_source", sourceParams); err != nil {
			log.Fatalf("[loadtest] add %s: %v", src, err)
		}
		for j := 0; j < *fanout; j++ {
			sink := fmt.Sprintf("sink-%d-%d", i, j)
			if err := handle.AddNode(ctx, sink, "loadgen_sink", sinkParams); err != nil {
				log.Fatalf("[loadtest] add %s: %v", sink, err)
			}
			if err := handle.Connect(ctx, src, "out", sink, "in", connMode); err != nil {
				log.Fatalf("[loadtest] connect %s -> %s: %v", src, sink, err)
			}
		}
	}
	log.Printf("[loadtest] graph built in %v: %d source(s) x %d sink(s), mode=%s",
		time.Since(start).Round(time.Millisecond), *sources, *fanout, connMode)

	for i := 0; i < *sources; i++ {
		src := fmt.Sprintf("source-%d", i)
		if err := handle.StartNode(ctx, src); err != nil {
			log.Fatalf("[loadtest] start %s: %v", src, err)
		}
	}

	deadline := time.NewTimer(*duration)
	defer deadline.Stop()
	ticker := time.NewTicker(*reportInterval)
	defer ticker.Stop()

run:
	for {
		select {
		case <-ctx.Done():
			log.Printf("[loadtest] interrupted")
			break run
		case <-deadline.C:
			break run
		case <-ticker.C:
			report(ctx, handle)
		}
	}

	report(ctx, handle)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Shutdown(shutCtx); err != nil {
		log.Printf("[loadtest] shutdown: %v", err)
	}
	handle.Join()
	log.Printf("[loadtest] done after %v", time.Since(start).Round(time.Millisecond))
}

// report prints one stats/state snapshot. The queries themselves double as a
// responsiveness probe: if the engine actor were wedged behind a stalled
// data path, these round-trips would be the first thing to hang.
func report(ctx context.Context, handle *engine.Handle) {
	qctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	queryStart := time.Now()
	states, err := handle.NodeStates(qctx)
	if err != nil {
		log.Printf("[loadtest] engine unresponsive: %v", err)
		return
	}
	stats, err := handle.NodeStats(qctx)
	if err != nil {
		log.Printf("[loadtest] stats query: %v", err)
		return
	}
	latency := time.Since(queryStart)

	var sent, received uint64
	byState := make(map[string]int)
	for id, st := range states {
		byState[st.Kind.String()]++
		if u, ok := stats[id]; ok {
			sent += u.PacketsOut
			received += u.PacketsIn
		}
	}

	keys := make([]string, 0, len(byState))
	for k := range byState {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	summary := ""
	for _, k := range keys {
		summary += fmt.Sprintf(" %s=%d", k, byState[k])
	}

	log.Printf("[loadtest] query_latency=%v sent=%d received=%d states:%s", latency.Round(time.Microsecond), sent, received, summary)
	for id, st := range states {
		if st.Kind == node.StateFailed {
			log.Printf("[loadtest] node %q failed: %s", id, st.Reason)
		}
	}
}
