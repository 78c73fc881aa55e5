// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_api_requests_total",
			Help: "Total requests sent to the remote property-management API",
		},
		[]string{"endpoint", "status_code"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_api_latency_seconds",
			Help:    "Latency of remote API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_api_retries_total",
			Help: "Retries of remote API requests by cause",
		},
		[]string{"reason"}, // rate_limited, server_error, timeout, credential
	)

	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_api_credential_refreshes_total",
			Help: "Bearer credential mints by outcome",
		},
		[]string{"result"},
	)

	// Sync
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_polls_total",
			Help: "Entity-kind pulls by tenant and status",
		},
		[]string{"tenant_id", "entity_kind", "status"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_poll_duration_seconds",
			Help:    "Duration of one entity-kind pull including upsert",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"entity_kind"},
	)

	RecordsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_synced_total",
			Help: "Records inserted or changed by the upsert writer",
		},
		[]string{"entity_kind"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_skipped_total",
			Help: "Records dropped by the upsert writer",
		},
		[]string{"entity_kind", "reason"}, // missing_id, duplicate_id
	)

	UpsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_upsert_duration_seconds",
			Help:    "Duration of one upsert batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_kind"},
	)

	TenantSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_tenant_runs_total",
			Help: "Completed tenant sync runs by outcome",
		},
		[]string{"outcome"}, // complete, partial, failed
	)

	ActiveTenants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_active_tenants",
			Help: "Number of active tenants",
		},
	)

	// Push events
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Push events received by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ProcessedEventsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_markers_pruned_total",
			Help: "Processed-event markers removed by retention",
		},
	)

	// Inbound HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Inbound HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Inbound requests currently being served",
		},
	)

	// Circuit breaker
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
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordRemoteRequest records one outbound request. status 0 means the
// request never produced a response.
func RecordRemoteRequest(endpoint string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	RemoteRequestsTotal.WithLabelValues(endpoint, code).Inc()
	RemoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRetry records a retry decision.
func RecordRetry(reason string) {
	RemoteRetries.WithLabelValues(reason).Inc()
}

// RecordCredentialRefresh records a token mint attempt.
func RecordCredentialRefresh(err error) {
	if err != nil {
		CredentialRefreshes.WithLabelValues("failure").Inc()
		return
	}
	CredentialRefreshes.WithLabelValues("success").Inc()
}

// RecordPoll records the outcome of one entity-kind pull for a tenant.
func RecordPoll(tenantID int64, kind string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PollsTotal.WithLabelValues(strconv.FormatInt(tenantID, 10), kind, status).Inc()
	PollDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordUpsert records the result of one upsert batch.
func RecordUpsert(kind string, written, missingID, duplicateID int, duration time.Duration) {
	RecordsSynced.WithLabelValues(kind).Add(float64(written))
	if missingID > 0 {
		RecordsSkipped.WithLabelValues(kind, "missing_id").Add(float64(missingID))
	}
	if duplicateID > 0 {
		RecordsSkipped.WithLabelValues(kind, "duplicate_id").Add(float64(duplicateID))
	}
	UpsertDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTenantSync records a finished tenant run.
func RecordTenantSync(outcome string) {
	TenantSyncs.WithLabelValues(outcome).Inc()
}

// OtherEventKind labels push events whose kind has no route.
const OtherEventKind = "other"

// RecordEvent records a push-event terminal outcome. Callers pass only
// routed kinds; anything else should be OtherEventKind.
func RecordEvent(kind, outcome string) {
	if kind == "" {
		kind = OtherEventKind
	}
	EventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordHTTPRequest records one inbound request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}
