package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	ChannelConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "channel_connections_active",
			Help: "Current number of open event channel connections",
		},
		[]string{"service"},
	)

	PushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_pushes_total",
			Help: "Message pushes by outcome (local, remote, dropped)",
		},
		[]string{"service", "outcome"},
	)

	MessagesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_persisted_total",
			Help: "Total number of messages written to the store",
		},
		[]string{"service"},
	)

	MessagesMarkedReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_marked_read_total",
			Help: "Total number of messages flipped to read",
		},
		[]string{"service"},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events relayed to the event stream",
		},
		[]string{"service", "event_type"},
	)

	OutboxPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox events that failed to publish",
		},
		[]string{"service"},
	)
)

// ServiceLabel is the "service" label recorded by in-process components.
const ServiceLabel = "messaging"
