// Package metrics exposes Prometheus collectors for the lockstep engine.
// Exposition is left to the host; the engine only increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steplock_frames_advanced_total",
		Help: "Synchronized frames completed by the tick path",
	})

	FixedSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steplock_fixed_steps_total",
		Help: "Fixed-step iterations executed",
	})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steplock_messages_received_total",
		Help: "Messages decoded from the peer",
	}, []string{"opcode"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steplock_messages_sent_total",
		Help: "Messages staged for the peer",
	}, []string{"opcode"})

	BytesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steplock_bytes_flushed_total",
		Help: "Bytes written to the transport by the end-of-tick flush",
	})

	QueueGrowth = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steplock_queue_growth_total",
		Help: "Capacity doublings of the per-frame message queue",
	})

	PeersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steplock_peers_rejected_total",
		Help: "Extra inbound connections rejected while a link was active",
	})

	HandshakeRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steplock_handshake_rtt_seconds",
		Help:    "Round-trip times observed during handshake latency sampling",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
