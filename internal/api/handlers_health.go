// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/staysync/internal/models"
)

const readinessTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status        string  `json:"status"`
	Database      string  `json:"database,omitempty"`
	ActiveTenants int     `json:"active_tenants,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HealthLive reports that the process is serving requests.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse{data=HealthStatus}
// @Router /api/v1/health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, HealthStatus{
		Status:        "alive",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}, start)
}

// HealthReady reports whether the database is reachable.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse{data=HealthStatus}
// @Failure 503 {object} models.APIResponse
// @Router /api/v1/health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Data: HealthStatus{
				Status:        "not_ready",
				Database:      "unreachable",
				UptimeSeconds: time.Since(h.startTime).Seconds(),
			},
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error: &models.APIError{
				Code:    "DATABASE_UNAVAILABLE",
				Message: "Database is not reachable",
			},
		})
		return
	}

	active, err := h.db.CountActiveTenants(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "Database query failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, HealthStatus{
		Status:        "ready",
		Database:      "ok",
		ActiveTenants: active,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}, start)
}
