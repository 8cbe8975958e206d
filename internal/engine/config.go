// Package engine implements the dynamic engine actor: the
// single-writer owner of a session's live graph, processing structural
// control commands and read-only queries from external collaborators.
package engine

import (
	"time"

	"streamkit/internal/packet"
)

// Config holds the per-session tunables, each with a documented default.
type Config struct {
	// PacketBatchSize is the greedy-receive scheduling hint handed to nodes.
	PacketBatchSize int
	// NodeInputCapacity is the bounded receiver capacity allocated per
	// declared input pin.
	NodeInputCapacity int
	// PinDistributorCapacity is the bounded capacity of the channel each
	// output pin writes into its distributor, and of the channel created for
	// a dynamically materialized input pin.
	PinDistributorCapacity int
	// EngineControlCapacity and EngineQueryCapacity size the engine's two
	// inbound mailboxes.
	EngineControlCapacity int
	EngineQueryCapacity   int
	// MaxTextChars is the server redaction truncation limit for outbound
	// telemetry.
	MaxTextChars int
	// TelemetryBufferSize is the capacity of the shared telemetry fan-in
	// channel every node's TelemetryTx writes to.
	TelemetryBufferSize int
	// AudioBucketSizes and AudioBuffersPerBucket configure the per-session
	// audio pool.
	AudioBucketSizes      []int
	AudioBuffersPerBucket int
	// ShutdownDeadline bounds how long Shutdown waits for node tasks to exit
	// cooperatively before aborting the stragglers.
	ShutdownDeadline time.Duration
	// SessionID is an opaque string threaded into node contexts and
	// telemetry/session events.
	SessionID string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		PacketBatchSize:        32,
		NodeInputCapacity:      128,
		PinDistributorCapacity: 64,
		EngineControlCapacity:  64,
		EngineQueryCapacity:    64,
		MaxTextChars:           100,
		TelemetryBufferSize:    100,
		AudioBucketSizes:       append([]int(nil), packet.DefaultAudioBucketSizes...),
		AudioBuffersPerBucket:  packet.DefaultAudioBuffersPerBucket,
		ShutdownDeadline:       500 * time.Millisecond,
	}
}
