package distributor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are package-level and labeled by node_id/pin_name: a handful of
// process-wide collectors bound with per-call label values rather than one
// collector per distributor instance.
var metrics = struct {
	packetsDistributed *prometheus.CounterVec
	packetsDropped     *prometheus.CounterVec
	bestEffortDrops    *prometheus.CounterVec
	outputsActive      *prometheus.GaugeVec
	sendWaitSeconds    *prometheus.HistogramVec
}{
	packetsDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pin_distributor_packets_distributed_total",
		Help: "Number of packets successfully distributed by pin distributors.",
	}, []string{"node_id", "pin_name"}),
	packetsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pin_distributor_packets_dropped_total",
		Help: "Number of packets dropped because a pin had no configured outputs.",
	}, []string{"node_id", "pin_name"}),
	bestEffortDrops: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pin_distributor_best_effort_drops_total",
		Help: "Number of packets dropped or overwritten on BestEffort connections due to backpressure.",
	}, []string{"node_id", "pin_name"}),
	outputsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamkit_pin_distributor_outputs_active",
		Help: "Number of active downstream outputs for a pin.",
	}, []string{"node_id", "pin_name"}),
	sendWaitSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamkit_pin_distributor_send_wait_seconds",
		Help:    "Time spent waiting for downstream capacity on a Reliable connection.",
		Buckets: prometheus.DefBuckets,
	}, []string{"node_id", "pin_name"}),
}
