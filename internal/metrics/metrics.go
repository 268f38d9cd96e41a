// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package metrics exposes Prometheus instrumentation for the streaming
// channels, the event routers, the keyed stores and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Streaming Channel Metrics
	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwatch_channel_state",
			Help: "Current channel state (0=idle, 1=connecting, 2=connected, 3=reconnecting, 4=closed)",
		},
		[]string{"channel"},
	)

	ChannelConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_channel_connection_events_total",
			Help: "Total number of connection events emitted per channel",
		},
		[]string{"channel", "connected"},
	)

	ChannelConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_channel_connect_attempts_total",
			Help: "Total number of connection attempts",
		},
		[]string{"channel", "kind", "result"}, // kind: "initial", "reconnect"; result: "success", "failure"
	)

	HubMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_hub_messages_received_total",
			Help: "Total number of hub messages dispatched to handlers",
		},
		[]string{"channel", "target"},
	)

	HubDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_hub_decode_errors_total",
			Help: "Total number of hub payloads that could not be decoded",
		},
		[]string{"channel", "target"},
	)

	// Event Router Metrics
	SubscriberPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_subscriber_panics_total",
			Help: "Total number of recovered subscriber callback panics",
		},
		[]string{"router"},
	)

	// Store Metrics
	StoreEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwatch_store_entries",
			Help: "Current number of entries in a keyed store",
		},
		[]string{"store"},
	)

	// Credential Metrics
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_credential_refreshes_total",
			Help: "Total number of credential refresh attempts",
		},
		[]string{"result"}, // "fresh", "refreshed", "failed", "rejected"
	)

	// Response Cache Metrics
	ResponseCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_response_cache_requests_total",
			Help: "Total number of encoded response cache lookups",
		},
		[]string{"format", "result"}, // "hit", "miss", "error"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active browser WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// SetChannelState records the numeric state of a channel.
func SetChannelState(channel string, state int) {
	ChannelState.WithLabelValues(channel).Set(float64(state))
}

// RecordConnectionEvent counts a connection event for a channel.
func RecordConnectionEvent(channel string, connected bool) {
	ChannelConnectionEvents.WithLabelValues(channel, strconv.FormatBool(connected)).Inc()
}

// RecordConnectAttempt counts an initial or reconnect attempt and its outcome.
func RecordConnectAttempt(channel string, reconnect bool, err error) {
	kind := "initial"
	if reconnect {
		kind = "reconnect"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	ChannelConnectAttempts.WithLabelValues(channel, kind, result).Inc()
}

// RecordHubMessage counts a dispatched hub message.
func RecordHubMessage(channel, target string) {
	HubMessagesReceived.WithLabelValues(channel, target).Inc()
}

// RecordDecodeError counts an undecodable hub payload.
func RecordDecodeError(channel, target string) {
	HubDecodeErrors.WithLabelValues(channel, target).Inc()
}

// RecordSubscriberPanic counts a recovered subscriber panic.
func RecordSubscriberPanic(router string) {
	SubscriberPanics.WithLabelValues(router).Inc()
}

// SetStoreEntries records the current size of a keyed store.
func SetStoreEntries(store string, n int) {
	StoreEntries.WithLabelValues(store).Set(float64(n))
}

// RecordCredentialRefresh counts a credential freshness check by outcome.
func RecordCredentialRefresh(result string) {
	CredentialRefreshes.WithLabelValues(result).Inc()
}

// RecordResponseCache counts an encoded response cache lookup.
func RecordResponseCache(format, result string) {
	ResponseCacheRequests.WithLabelValues(format, result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
