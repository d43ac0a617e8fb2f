// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - SMS pipeline throughput and failures
// - Wallet ledger activity
// - Billing cycle outcomes
// - WebSocket fan-out
// - Carrier and payment API latency
// - API endpoint latency and throughput

var (
	// SMS Pipeline Metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_sent_total",
			Help: "Total outbound messages accepted by the carrier",
		},
		[]string{"number_type"}, // "local", "toll-free"
	)

	MessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_failed_total",
			Help: "Total outbound messages rejected before or by the carrier",
		},
		[]string{"reason"}, // "insufficient_balance", "no_number", "carrier_error", "invalid_number"
	)

	MessagesInbound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_messages_inbound_total",
			Help: "Total inbound messages received via carrier webhook",
		},
	)

	// Wallet Ledger Metrics
	WalletCredits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_credits_total",
			Help: "Total credit transactions recorded",
		},
	)

	WalletDebits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_debits_total",
			Help: "Total debit transactions recorded",
		},
		[]string{"category"}, // "sms", "number_purchase", "monthly_charge"
	)

	WalletInsufficientBalance = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_insufficient_balance_total",
			Help: "Total debits rejected for insufficient balance",
		},
	)

	// Billing Cycle Metrics
	BillingCyclesRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_cycles_total",
			Help: "Billing cycle outcomes per account-number pair",
		},
		[]string{"outcome"}, // "charged", "suspended", "skipped"
	)

	BillingReactivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_reactivations_total",
			Help: "Suspended numbers reactivated after a top-up",
		},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of authenticated WebSocket connections",
		},
	)

	WSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_published_total",
			Help: "Events published to account sockets",
		},
		[]string{"event"},
	)

	WSEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_events_dropped_total",
			Help: "Events dropped because a client send buffer was full",
		},
	)

	// Upstream API Metrics
	CarrierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carrier_request_duration_seconds",
			Help:    "Duration of carrier API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"}, // operation: "send", "list_numbers", "purchase"
	)

	PaymentRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_request_duration_seconds",
			Help:    "Duration of payment processor API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"}, // operation: "create_intent", "confirm"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Store Metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"operation", "prefix"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of document store errors",
		},
		[]string{"operation", "prefix"},
	)
)

// RecordAPIRequest records duration and count for one HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	APIRequestDuration.WithLabelValues(method, endpoint, statusStr).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
}

// RecordCarrierRequest records one carrier API call.
func RecordCarrierRequest(operation, status string, duration time.Duration) {
	CarrierRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordPaymentRequest records one payment processor API call.
func RecordPaymentRequest(operation, status string, duration time.Duration) {
	PaymentRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordStoreOp records one document store operation.
func RecordStoreOp(operation, prefix string, duration time.Duration, err error) {
	StoreOpDuration.WithLabelValues(operation, prefix).Observe(duration.Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(operation, prefix).Inc()
	}
}
