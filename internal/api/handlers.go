// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package api serves the push event receiver, the admin account API, health
// probes and Prometheus metrics over a chi router.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/ingest"
	syncpkg "github.com/tomtom215/staysync/internal/sync"
)

// SyncTrigger starts background tenant syncs. *sync.Manager implements it.
type SyncTrigger interface {
	TriggerTenant(tenantID int64, dryRun bool) bool
	DefaultDryRun() bool
}

// WebhookRegistrar manages the remote webhook registration of a tenant.
// *sync.Client implements it.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, tenantID int64, reg syncpkg.WebhookRegistration) (int64, error)
	DeleteWebhook(ctx context.Context, tenantID, webhookID int64) error
}

// EventIngestor processes push event bodies. *ingest.Ingestor implements it.
type EventIngestor interface {
	Handle(ctx context.Context, creds ingest.Credentials, body []byte) *ingest.Result
}

// TenantEvicter drops a tenant from the webhook authentication cache.
type TenantEvicter interface {
	Evict(tenantID int64)
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_webhook.go: push event receiver
//   - handlers_accounts.go: account management
//   - handlers_health.go: liveness and readiness
type Handler struct {
	db        *database.DB
	cfg       *config.Config
	syncer    SyncTrigger
	webhooks  WebhookRegistrar
	ingestor  EventIngestor
	tenants   TenantEvicter
	startTime time.Time
}

// NewHandler creates the API handler. webhooks may be nil, which disables
// remote webhook registration and deletion.
func NewHandler(db *database.DB, cfg *config.Config, syncer SyncTrigger, webhooks WebhookRegistrar, ingestor EventIngestor, tenants TenantEvicter) *Handler {
	return &Handler{
		db:        db,
		cfg:       cfg,
		syncer:    syncer,
		webhooks:  webhooks,
		ingestor:  ingestor,
		tenants:   tenants,
		startTime: time.Now(),
	}
}

func (h *Handler) evict(tenantID int64) {
	if h.tenants != nil {
		h.tenants.Evict(tenantID)
	}
}

// accountID parses the {id} URL parameter, writing a 400 on failure.
func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "Account id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (value, present bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, false, nil
	}
	value, err = strconv.ParseBool(raw)
	return value, err == nil, err
}
