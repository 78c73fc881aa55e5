// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package ingest

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/cache"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
)

// ErrUnauthorized is returned when neither the tenant's webhook credential
// nor the global one matches.
var ErrUnauthorized = errors.New("webhook credentials rejected")

// TenantLookup loads tenants by id.
type TenantLookup interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
}

// Credentials are the Basic credentials presented with a push event.
type Credentials struct {
	Username string
	Password string
	// Present is false when the request carried no Basic credentials.
	Present bool
}

const (
	tenantCacheSize = 1024
	tenantCacheTTL  = 5 * time.Minute
)

// TenantCache memoizes active tenants for webhook authentication. Inactive
// and unknown tenants are not cached, so a reactivated tenant is picked up
// on its next event.
type TenantCache struct {
	lookup TenantLookup
	lru    *cache.LRU[*models.Tenant]
}

// NewTenantCache wraps lookup.
func NewTenantCache(lookup TenantLookup) *TenantCache {
	return &TenantCache{
		lookup: lookup,
		lru:    cache.New[*models.Tenant](tenantCacheSize, tenantCacheTTL),
	}
}

// Active returns the tenant when it exists and is active, or nil.
func (c *TenantCache) Active(ctx context.Context, id int64) (*models.Tenant, error) {
	key := strconv.FormatInt(id, 10)
	if t, ok := c.lru.Get(key); ok {
		return t, nil
	}

	t, err := c.lookup.GetTenant(ctx, id)
	if errors.Is(err, database.ErrTenantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, nil
	}
	c.lru.Add(key, t)
	return t, nil
}

// Evict drops a tenant after it was updated or deleted.
func (c *TenantCache) Evict(id int64) {
	if c.lru.Remove(strconv.FormatInt(id, 10)) {
		logging.Debug().Int64("tenant_id", id).Msg("Tenant evicted from webhook cache")
	}
}

// Len is the number of cached tenants.
func (c *TenantCache) Len() int {
	return c.lru.Len()
}

// Authenticator checks push-event credentials: first the tenant's own
// webhook login and bcrypt hash, then the optional global credential.
type Authenticator struct {
	tenants *TenantCache
	global  *auth.BasicAuthManager
}

// NewAuthenticator builds an authenticator. global may be nil.
func NewAuthenticator(tenants *TenantCache, global *auth.BasicAuthManager) *Authenticator {
	return &Authenticator{tenants: tenants, global: global}
}

// Authenticate returns the active tenant named by tenantID (nil when
// unknown, inactive or zero) and ErrUnauthorized when creds match neither
// credential.
func (a *Authenticator) Authenticate(ctx context.Context, tenantID int64, creds Credentials) (*models.Tenant, error) {
	var tenant *models.Tenant
	if tenantID > 0 {
		t, err := a.tenants.Active(ctx, tenantID)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("tenant_id", tenantID).Msg("Tenant lookup failed during webhook auth")
		}
		tenant = t
	}

	if !creds.Present {
		return tenant, ErrUnauthorized
	}
	if tenant != nil && tenant.WebhookLogin != "" &&
		subtle.ConstantTimeCompare([]byte(creds.Username), []byte(tenant.WebhookLogin)) == 1 &&
		auth.VerifyPassword(tenant.WebhookPasswordHash, creds.Password) {
		return tenant, nil
	}
	if a.global != nil && a.global.Validate(creds.Username, creds.Password) {
		return tenant, nil
	}
	return tenant, ErrUnauthorized
}
