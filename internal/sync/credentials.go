// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
)

// CredentialStore persists per-tenant secrets and bearer tokens.
type CredentialStore interface {
	ClientSecret(ctx context.Context, tenantID int64) (string, error)
	AccessToken(ctx context.Context, tenantID int64) (string, error)
	SaveAccessToken(ctx context.Context, tenantID int64, token string) error
}

// CredentialManager hands out bearer tokens and replaces expired ones.
type CredentialManager struct {
	store  CredentialStore
	minter TokenMinter

	// locks holds one *sync.Mutex per tenant id.
	locks sync.Map
}

// NewCredentialManager returns a manager backed by store and minter.
func NewCredentialManager(store CredentialStore, minter TokenMinter) *CredentialManager {
	return &CredentialManager{store: store, minter: minter}
}

func (m *CredentialManager) lock(tenantID int64) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Token returns the stored token, minting and persisting one if none exists.
func (m *CredentialManager) Token(ctx context.Context, tenantID int64) (string, error) {
	token, err := m.store.AccessToken(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load token for tenant %d: %w", tenantID, err)
	}
	if token != "" {
		return token, nil
	}

	mu := m.lock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	// Another caller may have minted while we waited.
	if token, err = m.store.AccessToken(ctx, tenantID); err != nil {
		return "", fmt.Errorf("load token for tenant %d: %w", tenantID, err)
	}
	if token != "" {
		return token, nil
	}
	logging.Debug().Int64("tenant_id", tenantID).Msg("No stored token, minting")
	return m.mint(ctx, tenantID)
}

// Refresh replaces failed with a new token. If the stored token already
// differs from failed, another caller refreshed it and that token is
// returned without minting.
func (m *CredentialManager) Refresh(ctx context.Context, tenantID int64, failed string) (string, error) {
	mu := m.lock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	token, err := m.store.AccessToken(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load token for tenant %d: %w", tenantID, err)
	}
	if token != "" && token != failed {
		logging.Debug().Int64("tenant_id", tenantID).Msg("Token already refreshed by another request")
		return token, nil
	}
	return m.mint(ctx, tenantID)
}

// mint exchanges the secret and persists the token before returning it.
// The caller holds the tenant lock.
func (m *CredentialManager) mint(ctx context.Context, tenantID int64) (string, error) {
	secret, err := m.store.ClientSecret(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load secret for tenant %d: %w", tenantID, err)
	}
	if secret == "" {
		return "", fmt.Errorf("tenant %d: %w", tenantID, ErrNoCredentials)
	}

	token, err := m.minter.Mint(ctx, tenantID, secret)
	metrics.RecordCredentialRefresh(err)
	if err != nil {
		return "", fmt.Errorf("mint token for tenant %d: %w", tenantID, err)
	}
	if err := m.store.SaveAccessToken(ctx, tenantID, token); err != nil {
		return "", fmt.Errorf("save token for tenant %d: %w", tenantID, err)
	}

	logging.Info().Int64("tenant_id", tenantID).Msg("Minted new access token")
	return token, nil
}
