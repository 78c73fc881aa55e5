// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

/*
Package sync pulls listings, bookings and message threads from the remote
property-management API into the local store.

# Components

  - Client: paginated GET with bounded retry, rate-limit backoff and
    credential refresh on 403. FetchAllPages reads page 0 to learn the total
    count, then fetches the rest with at most four requests in flight.
  - CredentialManager: per-tenant bearer tokens. Token mints one when none
    is stored; Refresh replaces a token that just failed. Refreshes for one
    tenant are serialized, so concurrent 403s mint once.
  - HTTPTokenMinter: client-credentials exchange against accessTokens.
  - Orchestrator: SyncTenant pulls kinds in order (listings, bookings,
    threads) with per-kind failure isolation; SyncAllTenants walks the
    active tenants.
  - Manager: scheduled SyncAllTenants plus background per-tenant triggers.

# Retry policy

The budget is MaxRetries retries beyond the first attempt, shared by every
cause:

	429           sleep 2 x RequestDelay
	5xx, timeout  sleep attempt x RequestDelay
	403           refresh credential (tenant requests only), no sleep
	other 4xx     terminal *StatusError

RequestDelay is Window / RequestsPerWindow (10s / 15 by default). The same
interval paces every outbound request through a token-bucket limiter.
*/
package sync
