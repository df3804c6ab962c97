package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventSub Ingestion Metrics
var (
	// EventSubConnectionState mirrors the ingestion client state machine (see twitch.State)
	EventSubConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsub_connection_state",
			Help: "Current ingestion state (0=disconnected, 1=connecting, 2=awaiting_handshake, 3=subscribing, 4=streaming, 5=reconnecting)",
		},
	)

	// EventSubConnectionsTotal tracks dial attempts by result
	EventSubConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_connections_total",
			Help: "Total EventSub websocket dial attempts by result",
		},
		[]string{"result"},
	)

	// EventSubReconnectsTotal tracks connection teardowns by reason
	EventSubReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_reconnects_total",
			Help: "Total EventSub reconnects by reason (keepalive_timeout, read_error, server_reconnect, dial_error, protocol_error)",
		},
		[]string{"reason"},
	)

	// EventSubFramesTotal tracks received frames by message type
	EventSubFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_frames_total",
			Help: "Total EventSub frames received by message type",
		},
		[]string{"message_type"},
	)

	// EventSubNotificationsTotal tracks notification decoding by subscription type and result
	EventSubNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_notifications_total",
			Help: "Total EventSub notifications by subscription type and result (decoded, unsupported, invalid)",
		},
		[]string{"subscription_type", "result"},
	)

	// EventSubSubscribeAttemptsTotal tracks subscription creation by type and result
	EventSubSubscribeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscribe_attempts_total",
			Help: "EventSub subscription attempts by subscription type and result",
		},
		[]string{"subscription_type", "result"},
	)
)

// Broadcast Hub Metrics
var (
	// BroadcastQueueDepth tracks the number of pending display events
	BroadcastQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_queue_depth",
			Help: "Number of display events waiting to be shown",
		},
	)

	// BroadcastActive is 1 while the scheduler is showing events and 0 while paused
	BroadcastActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active",
			Help: "1 if the display queue is active, 0 if paused",
		},
	)

	// BroadcastEventsShownTotal tracks events shown on overlays by kind
	BroadcastEventsShownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_shown_total",
			Help: "Total display events shown by event kind",
		},
		[]string{"kind"},
	)

	// BroadcastDeliveriesTotal tracks per-client message deliveries by result
	BroadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total per-client overlay message deliveries by result (delivered, failed)",
		},
		[]string{"result"},
	)

	// BroadcastClientsEvicted tracks clients removed after a failed send
	BroadcastClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_clients_evicted_total",
			Help: "Total overlay clients removed because a send failed",
		},
	)

	// BroadcastDisplaySeconds tracks how long each event stays on screen
	BroadcastDisplaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_display_seconds",
			Help:    "On-screen display time per event in seconds",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 30},
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks currently connected overlay clients
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of connected overlay clients",
		},
	)

	// WebSocketConnectionsTotal tracks overlay connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total overlay connection attempts by result (success, error, rejected)",
		},
		[]string{"result"},
	)

	// WebSocketMessageSendDuration tracks socket write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one message to an overlay socket",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketConnectionDuration tracks overlay connection lifetimes
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Overlay connection lifetime in seconds",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 43200},
		},
	)

	// WebSocketPingFailures tracks failed ping writes
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed ping writes to overlay clients",
		},
	)

	// WebSocketConnectionsRejected tracks connections refused by the limiter
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Overlay connections rejected by reason (global_limit, per_ip_limit, rate_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionCapacity tracks usage of the global connection limit
	WebSocketConnectionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Percentage of the global overlay connection limit in use",
		},
	)

	// WebSocketUniqueIPs tracks distinct client IPs with an open connection
	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique client IPs with open overlay connections",
		},
	)
)

// Narrative Metrics
var (
	// NarrativeGeneratedTotal tracks narrative generation by generator and result
	NarrativeGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_generated_total",
			Help: "Total narratives generated by generator (chat, template) and result (success, error)",
		},
		[]string{"generator", "result"},
	)

	// NarrativeGenerationDuration tracks generation latency by generator
	NarrativeGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_generation_duration_seconds",
			Help:    "Narrative generation latency in seconds",
			Buckets: []float64{.001, .01, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"generator"},
	)

	// NarrativeDuplicatesTotal tracks redelivered notifications dropped by deduplication
	NarrativeDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_duplicates_total",
			Help: "Total redelivered notifications dropped by deduplication",
		},
	)

	// NarrativeStoreErrorsTotal tracks failures persisting narratives
	NarrativeStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_store_errors_total",
			Help: "Narrative store failures by operation (record, recent_for_user)",
		},
		[]string{"operation"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)
)

// Circuit Breaker Metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks query latency by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBConnectionsCurrent tracks pool connections by state
	DBConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_connections_current",
			Help: "Current database pool connections by state (active/idle)",
		},
		[]string{"state"},
	)

	// DBErrorsTotal tracks query errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	// BuildInfo exposes version labels with a constant value of 1
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information (value is always 1)",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/errors package
