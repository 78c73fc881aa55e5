// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package models

import "time"

// Tenant is one remote account. Secrets never leave the process through
// JSON encoding.
type Tenant struct {
	ID                  int64      `json:"account_id"`
	CustomerID          string     `json:"customer_id"`
	ClientSecret        string     `json:"-"`
	AccessToken         string     `json:"-"`
	WebhookLogin        string     `json:"webhook_login,omitempty"`
	WebhookPasswordHash string     `json:"-"`
	WebhookID           *int64     `json:"webhook_id,omitempty"`
	IsActive            bool       `json:"is_active"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasCredential reports whether a bearer credential has been minted.
func (t *Tenant) HasCredential() bool {
	return t.AccessToken != ""
}

// SyncState is the per-kind outcome of the most recent pull for a tenant.
type SyncState struct {
	TenantID      int64      `json:"account_id"`
	EntityKind    EntityKind `json:"entity_kind"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	LastSuccessAt *time.Time `json:"last_success_at"`
	LastError     string     `json:"last_error,omitempty"`
	Records       int        `json:"records"`
}
