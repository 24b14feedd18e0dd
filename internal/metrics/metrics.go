// Package metrics holds the webhook ingress metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts inbound messages by type.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hisabi_messages_received_total",
			Help: "Total number of inbound messages by type",
		},
		[]string{"type"}, // text, image
	)

	// MessagesDeduplicated counts redelivered messages dropped before dispatch.
	MessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hisabi_messages_deduplicated_total",
			Help: "Total number of duplicate message deliveries dropped",
		},
	)

	// HandleErrors counts messages whose handling returned an error.
	HandleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hisabi_handle_errors_total",
			Help: "Total number of messages whose handling failed",
		},
	)

	// HandleDuration observes end-to-end handling time per message.
	HandleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hisabi_handle_duration_seconds",
			Help:    "Duration of message handling in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10},
		},
	)
)
