package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token Metrics
var (
	// TokensIssuedTotal tracks issued tokens by lifetime class ("default" or "short")
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Total tokens issued by lifetime class",
		},
		[]string{"class"},
	)

	// TokenValidationsTotal tracks explicit token lookups by result (valid, not_found, expired)
	TokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Total token validation lookups by result",
		},
		[]string{"result"},
	)

	// TokenStoreSize tracks tokens held in memory (including expired, not yet evicted)
	TokenStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_store_size",
			Help: "Number of tokens held by the token store",
		},
	)

	// TokenStoreEvictions tracks expired tokens purged from the store
	TokenStoreEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_store_evictions_total",
			Help: "Total expired tokens purged from the token store",
		},
	)
)

// Relay Metrics
var (
	// RelayConnectedClients tracks registered WebSocket connections
	RelayConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of authenticated connections registered with the relay",
		},
	)

	// RelayMessagesReceivedTotal tracks inbound frames by outcome (accepted, malformed)
	RelayMessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Total inbound messages by outcome",
		},
		[]string{"outcome"},
	)

	// RelayDeliveriesTotal tracks per-recipient fan-out results (sent, skipped)
	RelayDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total per-recipient deliveries by result",
		},
		[]string{"result"},
	)

	// RelayBroadcastDuration tracks time spent fanning a message out
	RelayBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_duration_seconds",
			Help:    "Time to enqueue a message for all recipients",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// RelayExpiryEvictionsTotal tracks connections evicted by the expiry sweep
	RelayExpiryEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_expiry_evictions_total",
			Help: "Total connections closed because their token expired",
		},
	)

	// RelaySweepDuration tracks the duration of an expiry sweep pass
	RelaySweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_sweep_duration_seconds",
			Help:    "Duration of an expiry sweep pass",
			Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
		},
	)

	// RelayPanicsTotal tracks relay panic recoveries
	RelayPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_panics_total",
			Help: "Total relay panic recoveries",
		},
	)

	// RelayCommandChannelDepth tracks current command channel depth
	RelayCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_command_channel_depth",
			Help: "Current relay command channel depth",
		},
	)

	// RelayStopTimeoutsTotal tracks relay stops that exceeded timeout
	RelayStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_stop_timeouts_total",
			Help: "Relay stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketUpgradesTotal tracks upgrade attempts by result
	WebSocketUpgradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_upgrades_total",
			Help: "Total WebSocket upgrade attempts by result",
		},
		[]string{"result"},
	)

	// WebSocketAuthRejectionsTotal tracks rejected handshakes by reason (missing, malformed, invalid)
	WebSocketAuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_auth_rejections_total",
			Help: "Total WebSocket handshakes rejected by the authenticator",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionLimitRejectionsTotal tracks upgrades refused by connection limits
	WebSocketConnectionLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connection_limit_rejections_total",
			Help: "Total WebSocket upgrades refused by connection limits",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionDuration tracks WebSocket connection duration
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 86400},
		},
	)

	// WebSocketMessageSendDuration tracks per-frame write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures",
		},
	)
)

// HTTP Metrics
var (
	// HTTPErrorsTotal tracks structured HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)
