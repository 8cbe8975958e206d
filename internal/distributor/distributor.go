// Package distributor implements the per-pin distributor actor: the
// backpressured fan-out from one output pin to N downstream consumers.
package distributor

import (
	"context"
	"log"
	"sync"
	"time"

	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

type outputConnection struct {
	tx   chan<- packet.Packet
	mode pin.ConnectionMode
	// pendingBestEffort is the single coalesced slot for a BestEffort
	// connection that's currently full: the most recent packet that
	// couldn't be delivered immediately. It is bookkeeping only — nothing
	// in this actor retries it once the slot is overwritten or the
	// connection closes.
	pendingBestEffort *packet.Packet
}

// Distributor fans packets from one output pin out to every connection
// currently configured for it, honoring each connection's delivery mode.
type Distributor struct {
	dataRx   <-chan packet.Packet
	configRx <-chan ConfigMessage
	nodeID   string
	pinName  string

	outputs map[pin.ConnectionId]*outputConnection
}

// New creates a distributor for one output pin. The caller owns dataRx
// (fed by the node's OutputSender in Routed mode) and configRx (fed by
// whatever owns topology changes — typically the dynamic engine).
func New(dataRx <-chan packet.Packet, configRx <-chan ConfigMessage, nodeID, pinName string) *Distributor {
	metrics.outputsActive.WithLabelValues(nodeID, pinName).Set(0)
	return &Distributor{
		dataRx:   dataRx,
		configRx: configRx,
		nodeID:   nodeID,
		pinName:  pinName,
		outputs:  make(map[pin.ConnectionId]*outputConnection),
	}
}

// Run is the distributor's actor loop. It prioritizes config messages over
// data (biased toward topology changes, mirroring tokio::select! biased)
// so a Connect/Disconnect always lands before the packet it should affect.
// On Shutdown it returns immediately without draining pending data, to
// terminate fast rather than deliver stale packets.
func (d *Distributor) Run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-d.configRx:
			if !ok {
				if d.drainOnceMore(ctx) {
					continue
				}
				return
			}
			if !d.handleConfig(msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg, ok := <-d.configRx:
			if !ok {
				if d.drainOnceMore(ctx) {
					continue
				}
				return
			}
			if !d.handleConfig(msg) {
				return
			}
		case pkt, ok := <-d.dataRx:
			if !ok {
				if d.drainOnceMore(ctx) {
					continue
				}
				return
			}
			d.distributePacket(ctx, pkt)
		case <-ctx.Done():
			return
		}
	}
}

// drainOnceMore handles the case where one of the two inbound channels has
// closed but the other may still have a final message pending; it reports
// whether the loop should keep going: true after handling a pending message
// (false if that message was a config Shutdown), and false as soon as
// neither channel has a message ready, even if one of them is still open.
func (d *Distributor) drainOnceMore(ctx context.Context) bool {
	select {
	case msg, ok := <-d.configRx:
		if ok {
			return d.handleConfig(msg)
		}
	default:
	}
	select {
	case pkt, ok := <-d.dataRx:
		if ok {
			d.distributePacket(ctx, pkt)
			return true
		}
	default:
	}
	return false
}

// handleConfig applies one config message, returning false iff Shutdown was
// requested.
func (d *Distributor) handleConfig(msg ConfigMessage) bool {
	switch msg.Kind {
	case ConfigAddConnection:
		d.outputs[msg.ID] = &outputConnection{tx: msg.Tx, mode: msg.Mode}
	case ConfigRemoveConnection:
		delete(d.outputs, msg.ID)
	case ConfigShutdown:
		return false
	}
	metrics.outputsActive.WithLabelValues(d.nodeID, d.pinName).Set(float64(len(d.outputs)))
	return true
}

// distributePacket fans one packet out to every configured output,
// respecting Reliable (synchronous backpressure) vs. BestEffort (single
// pending slot, drop-oldest) semantics.
func (d *Distributor) distributePacket(ctx context.Context, pkt packet.Packet) {
	if len(d.outputs) == 0 {
		metrics.packetsDropped.WithLabelValues(d.nodeID, d.pinName).Inc()
		return
	}

	if len(d.outputs) == 1 {
		for id, conn := range d.outputs {
			d.sendOne(ctx, id, conn, pkt)
			return
		}
	}

	type reliableResult struct {
		id     pin.ConnectionId
		waited time.Duration
		closed bool
	}

	var successes int
	var bestEffortDrops int
	toRemove := make([]pin.ConnectionId, 0)

	var wg sync.WaitGroup
	results := make(chan reliableResult, len(d.outputs))

	for id, conn := range d.outputs {
		switch conn.mode {
		case pin.BestEffort:
			select {
			case conn.tx <- pkt.Clone():
				successes++
			default:
				// The downstream has no room right now: this packet is
				// coalesced into the single pending slot. Only a packet
				// already occupying the slot counts as a drop; filling an
				// empty slot loses nothing yet.
				if conn.pendingBestEffort != nil {
					bestEffortDrops++
				}
				cloned := pkt.Clone()
				conn.pendingBestEffort = &cloned
			}
		case pin.Reliable:
			clone := pkt.Clone()
			select {
			case conn.tx <- clone:
				successes++
			default:
				id, conn, clone := id, conn, clone
				wg.Add(1)
				go func() {
					defer wg.Done()
					start := time.Now()
					closed := false
					select {
					case conn.tx <- clone:
					case <-ctx.Done():
						closed = true
					}
					results <- reliableResult{id: id, waited: time.Since(start), closed: closed}
				}()
			}
		}
	}

	wg.Wait()
	close(results)
	for r := range results {
		metrics.sendWaitSeconds.WithLabelValues(d.nodeID, d.pinName).Observe(r.waited.Seconds())
		if r.closed {
			toRemove = append(toRemove, r.id)
		} else {
			successes++
		}
	}

	for _, id := range toRemove {
		log.Printf("[distributor] %s.%s: downstream connection %s closed during fan-out", d.nodeID, d.pinName, id)
		delete(d.outputs, id)
	}

	if successes > 0 {
		metrics.packetsDistributed.WithLabelValues(d.nodeID, d.pinName).Add(float64(successes))
	}
	if bestEffortDrops > 0 {
		metrics.bestEffortDrops.WithLabelValues(d.nodeID, d.pinName).Add(float64(bestEffortDrops))
	}
}

// sendOne is the single-destination fast path: avoids the
// allocation/goroutine machinery of the general fan-out when there is only
// one consumer to satisfy.
func (d *Distributor) sendOne(ctx context.Context, id pin.ConnectionId, conn *outputConnection, pkt packet.Packet) {
	if conn.mode == pin.BestEffort {
		select {
		case conn.tx <- pkt:
			metrics.packetsDistributed.WithLabelValues(d.nodeID, d.pinName).Inc()
		default:
			if conn.pendingBestEffort != nil {
				metrics.bestEffortDrops.WithLabelValues(d.nodeID, d.pinName).Inc()
			}
			conn.pendingBestEffort = &pkt
		}
		return
	}

	select {
	case conn.tx <- pkt:
		metrics.packetsDistributed.WithLabelValues(d.nodeID, d.pinName).Inc()
		return
	default:
	}

	start := time.Now()
	select {
	case conn.tx <- pkt:
		metrics.sendWaitSeconds.WithLabelValues(d.nodeID, d.pinName).Observe(time.Since(start).Seconds())
		metrics.packetsDistributed.WithLabelValues(d.nodeID, d.pinName).Inc()
	case <-ctx.Done():
		log.Printf("[distributor] %s.%s: downstream connection %s closed", d.nodeID, d.pinName, id)
		delete(d.outputs, id)
	}
}
