// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartsync_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heartsync_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartsync_api_active_requests",
			Help: "Number of requests currently being served",
		},
	)

	// Domain metrics
	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartsync_registrations_total",
			Help: "Total number of registered accounts",
		},
	)

	PairingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartsync_pairings_total",
			Help: "Pairing attempts by result",
		},
		[]string{"result"}, // "success", "not_found", "invalid_request", "forbidden", "conflict", "internal"
	)

	VerificationEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartsync_verification_emails_total",
			Help: "Verification emails by delivery result",
		},
		[]string{"result"},
	)

	VerificationCodesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartsync_verification_codes_purged_total",
			Help: "Expired verification codes removed by the purge job",
		},
	)

	PushNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartsync_push_notifications_total",
			Help: "Partner notifications by channel and result",
		},
		[]string{"channel", "result"}, // channel: "websocket", "apns"
	)

	// WebSocket metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartsync_websocket_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartsync_websocket_messages_total",
			Help: "Websocket messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heartsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordAPIRequest records one served request
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
