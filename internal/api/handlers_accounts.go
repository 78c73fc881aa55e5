// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
	syncpkg "github.com/tomtom215/staysync/internal/sync"
)

// CreateAccount registers a tenant and schedules its initial sync.
//
// @Summary Create account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account"
// @Success 201 {object} models.APIResponse{data=AccountResponse}
// @Failure 400 {object} models.APIResponse "Missing client secret or invalid body"
// @Failure 422 {object} models.APIResponse "Account already exists"
// @Security BearerAuth
// @Router /api/v1/accounts [post]
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ClientSecret) == "" {
		respondError(w, http.StatusBadRequest, "MISSING_CLIENT_SECRET", "Client secret is required", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	tenant := &models.Tenant{
		ID:           req.AccountID,
		CustomerID:   req.CustomerID,
		ClientSecret: req.ClientSecret,
		WebhookLogin: req.WebhookLogin,
		IsActive:     true,
	}
	if tenant.CustomerID == "" {
		tenant.CustomerID = uuid.New().String()
	}
	if req.WebhookPassword != "" {
		hash, err := auth.HashPassword(req.WebhookPassword)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store webhook credentials", err)
			return
		}
		tenant.WebhookPasswordHash = hash
	}

	if err := h.db.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, database.ErrTenantExists) {
			respondError(w, http.StatusUnprocessableEntity, "ACCOUNT_EXISTS",
				fmt.Sprintf("Account %d already exists", req.AccountID), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create account", err)
		return
	}
	logging.Ctx(ctx).Info().Int64("tenant_id", tenant.ID).Msg("Account created")

	if h.registrationEnabled() {
		h.registerWebhook(ctx, tenant, req.WebhookLogin, req.WebhookPassword)
	}

	triggered := h.syncer.TriggerTenant(tenant.ID, h.syncer.DefaultDryRun())
	respondSuccess(w, http.StatusCreated, AccountResponse{
		Account:       tenant,
		SyncStatus:    syncStatus(tenant),
		SyncTriggered: triggered,
		Message:       "Account created. Initial sync scheduled in background.",
	}, start)
}

func (h *Handler) registrationEnabled() bool {
	return h.webhooks != nil && h.cfg.Webhook.RegisterOnCreate && h.cfg.Webhook.BaseURL != ""
}

// registerWebhook registers the push endpoint for a new tenant. Failures are
// logged; the account stays usable for polling.
func (h *Handler) registerWebhook(ctx context.Context, tenant *models.Tenant, login, password string) {
	log := logging.Ctx(ctx)
	if login == "" {
		login, password = h.cfg.Webhook.Username, h.cfg.Webhook.Password
	}
	if login == "" || password == "" {
		log.Warn().Int64("tenant_id", tenant.ID).Msg("Skipping webhook registration, no webhook credentials configured")
		return
	}

	id, err := h.webhooks.RegisterWebhook(ctx, tenant.ID, syncpkg.WebhookRegistration{
		URL:        h.cfg.Webhook.BaseURL,
		Login:      login,
		Password:   password,
		AlertEmail: h.cfg.Webhook.AlertEmail,
	})
	if err != nil {
		log.Error().Err(err).Int64("tenant_id", tenant.ID).Msg("Webhook registration failed")
		return
	}
	if err := h.db.SetWebhookID(ctx, tenant.ID, &id); err != nil {
		log.Error().Err(err).Int64("tenant_id", tenant.ID).Int64("webhook_id", id).Msg("Failed to store webhook id")
		return
	}
	tenant.WebhookID = &id
}

// GetAccount returns a tenant with its sync status.
//
// @Summary Get account
// @Tags Accounts
// @Produce json
// @Param id path int true "Account ID"
// @Success 200 {object} models.APIResponse{data=AccountResponse}
// @Failure 404 {object} models.APIResponse
// @Security BearerAuth
// @Router /api/v1/accounts/{id} [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	tenant, ok := h.loadTenant(r.Context(), w, id)
	if !ok {
		return
	}
	states, err := h.db.ListSyncStates(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load sync state", err)
		return
	}

	respondSuccess(w, http.StatusOK, AccountResponse{
		Account:    tenant,
		SyncStatus: syncStatus(tenant),
		SyncState:  states,
	}, start)
}

// UpdateAccount changes credentials or flags of an active tenant. A new
// client secret on a tenant that never synced triggers a sync.
//
// @Summary Update account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body UpdateAccountRequest true "Fields to change"
// @Success 200 {object} models.APIResponse{data=AccountResponse}
// @Failure 404 {object} models.APIResponse "Unknown or inactive account"
// @Security BearerAuth
// @Router /api/v1/accounts/{id} [patch]
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	current, ok := h.loadTenant(ctx, w, id)
	if !ok {
		return
	}
	if !current.IsActive {
		respondError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", fmt.Sprintf("Account %d not found or inactive", id), nil)
		return
	}
	if req.empty() {
		respondSuccess(w, http.StatusOK, AccountResponse{
			Account:    current,
			SyncStatus: syncStatus(current),
			Message:    "No fields to update",
		}, start)
		return
	}

	secretChanged := false
	if req.ClientSecret != nil {
		old, err := h.db.ClientSecret(ctx, id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load account", err)
			return
		}
		secretChanged = *req.ClientSecret != old
	}

	upd := database.TenantUpdate{
		CustomerID:   req.CustomerID,
		ClientSecret: req.ClientSecret,
		WebhookLogin: req.WebhookLogin,
		IsActive:     req.IsActive,
	}
	if req.WebhookPassword != nil {
		hash, err := auth.HashPassword(*req.WebhookPassword)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store webhook credentials", err)
			return
		}
		upd.WebhookPasswordHash = &hash
	}

	updated, err := h.db.UpdateTenant(ctx, id, upd)
	if err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", fmt.Sprintf("Account %d not found", id), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update account", err)
		return
	}
	h.evict(id)

	resp := AccountResponse{
		Account:    updated,
		SyncStatus: syncStatus(updated),
		Message:    fmt.Sprintf("Account %d updated", id),
	}
	if secretChanged && current.LastSyncAt == nil && updated.IsActive {
		resp.SyncTriggered = h.syncer.TriggerTenant(id, h.syncer.DefaultDryRun())
		resp.Message = fmt.Sprintf("Account %d updated. Sync triggered (new credentials, never synced before).", id)
		logging.Ctx(ctx).Info().Int64("tenant_id", id).Msg("Account updated, sync triggered")
	} else {
		logging.Ctx(ctx).Info().Int64("tenant_id", id).Msg("Account updated")
	}
	respondSuccess(w, http.StatusOK, resp, start)
}

// DeleteAccount deactivates a tenant, or removes it with all synced data
// when soft=false.
//
// @Summary Delete account
// @Tags Accounts
// @Produce json
// @Param id path int true "Account ID"
// @Param soft query bool false "Soft delete (default true)"
// @Success 200 {object} models.APIResponse{data=MessageResponse}
// @Failure 404 {object} models.APIResponse
// @Security BearerAuth
// @Router /api/v1/accounts/{id} [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	soft, present, err := boolQuery(r, "soft")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "soft must be a boolean", nil)
		return
	}
	if !present {
		soft = true
	}

	tenant, ok := h.loadTenant(ctx, w, id)
	if !ok {
		return
	}

	var message string
	if soft {
		if err := h.db.DeactivateTenant(ctx, id); err != nil {
			respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to deactivate account", err)
			return
		}
		message = fmt.Sprintf("Account %d deactivated (soft delete)", id)
	} else {
		h.deleteWebhook(ctx, tenant)
		if err := h.db.DeleteTenant(ctx, id); err != nil {
			respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete account", err)
			return
		}
		message = fmt.Sprintf("Account %d permanently deleted", id)
	}
	h.evict(id)

	logging.Ctx(ctx).Info().Int64("tenant_id", id).Bool("soft", soft).Msg("Account deleted")
	respondSuccess(w, http.StatusOK, MessageResponse{Message: message}, start)
}

// deleteWebhook removes the remote registration, best effort.
func (h *Handler) deleteWebhook(ctx context.Context, tenant *models.Tenant) {
	if h.webhooks == nil || tenant.WebhookID == nil {
		return
	}
	if err := h.webhooks.DeleteWebhook(ctx, tenant.ID, *tenant.WebhookID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("tenant_id", tenant.ID).Int64("webhook_id", *tenant.WebhookID).
			Msg("Remote webhook deletion failed, continuing with account deletion")
	}
}

// TriggerSync schedules a background sync for one tenant.
//
// @Summary Trigger account sync
// @Tags Accounts
// @Produce json
// @Param id path int true "Account ID"
// @Param dry_run query bool false "Override the configured dry-run default"
// @Success 202 {object} models.APIResponse{data=SyncTriggerResponse}
// @Failure 404 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse "Sync already running"
// @Security BearerAuth
// @Router /api/v1/accounts/{id}/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	dryRun, present, err := boolQuery(r, "dry_run")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "dry_run must be a boolean", nil)
		return
	}
	if !present {
		dryRun = h.syncer.DefaultDryRun()
	}

	if _, ok := h.loadTenant(r.Context(), w, id); !ok {
		return
	}

	if !h.syncer.TriggerTenant(id, dryRun) {
		respondError(w, http.StatusConflict, "SYNC_IN_PROGRESS", fmt.Sprintf("A sync for account %d is already running", id), nil)
		return
	}

	logging.Ctx(r.Context()).Info().Int64("tenant_id", id).Bool("dry_run", dryRun).Msg("Sync triggered")
	respondSuccess(w, http.StatusAccepted, SyncTriggerResponse{
		AccountID: id,
		DryRun:    dryRun,
		Message:   fmt.Sprintf("Sync scheduled for account %d", id),
	}, start)
}

// GetThread returns the normalized view of a stored conversation thread.
//
// @Summary Get conversation thread
// @Tags Accounts
// @Produce json
// @Param id path int true "Account ID"
// @Param threadID path string true "Thread ID"
// @Success 200 {object} models.APIResponse{data=models.ThreadView}
// @Failure 404 {object} models.APIResponse
// @Security BearerAuth
// @Router /api/v1/accounts/{id}/threads/{threadID} [get]
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")

	rec, err := h.db.GetRecord(r.Context(), models.ThreadSpec, threadID)
	if err != nil && !errors.Is(err, database.ErrRecordNotFound) {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load thread", err)
		return
	}
	if rec == nil || rec.TenantID != id {
		respondError(w, http.StatusNotFound, "THREAD_NOT_FOUND", "Thread not found", nil)
		return
	}

	view, err := models.NormalizeThread(rec)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INVALID_THREAD", "Stored thread could not be decoded", err)
		return
	}
	respondSuccess(w, http.StatusOK, view, start)
}

// loadTenant fetches a tenant, writing 404 or 500 on failure.
func (h *Handler) loadTenant(ctx context.Context, w http.ResponseWriter, id int64) (*models.Tenant, bool) {
	tenant, err := h.db.GetTenant(ctx, id)
	if errors.Is(err, database.ErrTenantNotFound) {
		respondError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", fmt.Sprintf("Account %d not found", id), nil)
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load account", err)
		return nil, false
	}
	return tenant, true
}
