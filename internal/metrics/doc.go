// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package metrics defines the Prometheus instruments exported on /metrics.
//
// Instruments are registered on the default registry through promauto at
// package init. Callers use the Record* helpers rather than touching the
// vectors directly so label sets stay consistent:
//
//	metrics.RecordRemoteRequest("listings", 200, time.Since(start))
//	metrics.RecordPoll(tenantID, "bookings", err, time.Since(start))
//	metrics.RecordEvent("reservation.updated", "handled")
//
// Metric families:
//
//   - remote_api_*: outbound calls to the property-management API
//   - sync_*: per-tenant, per-entity-kind pulls and upserts
//   - webhook_events_total: push-event outcomes
//   - http_*: inbound requests served by this process
//   - circuit_breaker_*: remote API breaker state
package metrics
