package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus Metrics
var (
	// BusPublishedTotal tracks events accepted for fan-out by event type
	BusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_published_events_total",
			Help: "Total events published to the bus by event type",
		},
		[]string{"type"},
	)

	// BusLaggedEventsTotal tracks events dropped from full mailboxes
	BusLaggedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_lagged_events_total",
			Help: "Total events dropped because a subscriber mailbox was full",
		},
	)

	// BusMailboxes tracks currently open mailboxes
	BusMailboxes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_mailboxes_current",
			Help: "Current number of open bus mailboxes",
		},
	)

	// RegistrySessions tracks registered sessions
	RegistrySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_sessions_current",
			Help: "Current number of registered sessions",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks connection lifecycle by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connections by result",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks upgrades refused by the connection limiter
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionDuration tracks how long sessions stay connected
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// WebSocketMessagesSent tracks outbound messages by event type
	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total messages written to WebSocket clients by event type",
		},
		[]string{"type"},
	)

	// WebSocketMessageSendDuration tracks time spent writing a frame
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one WebSocket frame in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketCommandsTotal tracks inbound client commands by type
	WebSocketCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_commands_total",
			Help: "Total inbound client commands by type",
		},
		[]string{"type"},
	)

	// WebSocketProtocolErrors tracks malformed inbound messages
	WebSocketProtocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_protocol_errors_total",
			Help: "Total malformed inbound messages",
		},
	)

	// WebSocketAuthTotal tracks authentication attempts by result
	WebSocketAuthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_auth_total",
			Help: "Total in-band authentication attempts by result",
		},
		[]string{"result"},
	)

	// WebSocketPingFailures tracks failed keep-alive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping write failures",
		},
	)
)

// Feed Metrics
var (
	// FeedTicksTotal tracks simulator ticks
	FeedTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_ticks_total",
			Help: "Total simulated market feed ticks",
		},
	)

	// FeedTrackedSymbols tracks symbols the simulator is pricing
	FeedTrackedSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_tracked_symbols",
			Help: "Number of symbols tracked by the simulated feed",
		},
	)

	// FeedRelayedTotal tracks upstream market events republished by the relay
	FeedRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_relayed_events_total",
			Help: "Total upstream market events relayed onto the bus by type",
		},
		[]string{"type"},
	)
)

// HTTP Metrics
var (
	// HTTPRequestDuration tracks request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPInFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
