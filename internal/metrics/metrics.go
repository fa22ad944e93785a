package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_messages_ingested_total",
			Help: "Total messages persisted",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	FanoutPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_fanout_pushed_total",
			Help: "Total push deliveries published",
		},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fanout_dropped_total",
			Help: "Total push deliveries dropped",
		},
		[]string{"reason"},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_connections_active",
			Help: "Currently open gateway connections",
		},
	)

	AuthRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_auth_rejected_total",
			Help: "Total connection auth rejections",
		},
		[]string{"reason"},
	)
)
