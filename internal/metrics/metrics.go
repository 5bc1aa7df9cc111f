package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"kind"}, // "top_level" or "reply"
	)

	MessageUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_message_updates_total",
			Help: "Total message mutations",
		},
		[]string{"kind"}, // "reaction" or "read"
	)

	TypingSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_typing_signals_total",
			Help: "Total typing signals relayed",
		},
	)

	SocketsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sockets_connected",
			Help: "Currently connected feed and topic sockets",
		},
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_frames_delivered_total",
			Help: "Envelope frames published to subscribers",
		},
		[]string{"type"}, // "insert", "update", "typing"
	)

	// Infrastructure metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_cache_results_total",
			Help: "Hot cache lookups by result",
		},
		[]string{"result"}, // "hit" or "miss"
	)
)
