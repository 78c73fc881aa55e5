// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"github.com/tomtom215/staysync/internal/models"
)

// CreateAccountRequest is the body of POST /api/v1/accounts.
type CreateAccountRequest struct {
	AccountID       int64  `json:"account_id" validate:"gt=0"`
	ClientSecret    string `json:"client_secret" validate:"required,notblank,max=512"`
	CustomerID      string `json:"customer_id,omitempty" validate:"omitempty,uuid"`
	WebhookLogin    string `json:"webhook_login,omitempty" validate:"omitempty,login,max=128"`
	WebhookPassword string `json:"webhook_password,omitempty" validate:"required_with=WebhookLogin,omitempty,min=8,max=256"`
}

// UpdateAccountRequest is the body of PATCH /api/v1/accounts/{id}. Nil
// fields are left unchanged.
type UpdateAccountRequest struct {
	CustomerID      *string `json:"customer_id,omitempty" validate:"omitempty,uuid"`
	ClientSecret    *string `json:"client_secret,omitempty" validate:"omitempty,notblank,max=512"`
	WebhookLogin    *string `json:"webhook_login,omitempty" validate:"omitempty,login,max=128"`
	WebhookPassword *string `json:"webhook_password,omitempty" validate:"omitempty,min=8,max=256"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

func (r *UpdateAccountRequest) empty() bool {
	return r.CustomerID == nil && r.ClientSecret == nil && r.WebhookLogin == nil &&
		r.WebhookPassword == nil && r.IsActive == nil
}

// Sync status values reported for an account.
const (
	SyncStatusNeverSynced = "never_synced"
	SyncStatusSynced      = "synced"
	SyncStatusInactive    = "inactive"
)

// AccountResponse is the account view returned by the account API. Secrets
// and tokens never appear in it.
type AccountResponse struct {
	Account       *models.Tenant     `json:"account"`
	SyncStatus    string             `json:"sync_status"`
	SyncState     []models.SyncState `json:"sync_state,omitempty"`
	SyncTriggered bool               `json:"sync_triggered,omitempty"`
	Message       string             `json:"message,omitempty"`
}

func syncStatus(t *models.Tenant) string {
	switch {
	case !t.IsActive:
		return SyncStatusInactive
	case t.LastSyncAt == nil:
		return SyncStatusNeverSynced
	default:
		return SyncStatusSynced
	}
}

// SyncTriggerResponse is returned by POST /api/v1/accounts/{id}/sync.
type SyncTriggerResponse struct {
	AccountID int64  `json:"account_id"`
	DryRun    bool   `json:"dry_run"`
	Message   string `json:"message"`
}

// MessageResponse carries a human-readable result.
type MessageResponse struct {
	Message string `json:"message"`
}
