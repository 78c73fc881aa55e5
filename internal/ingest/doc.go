// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

/*
Package ingest handles push events sent by the remote API.

Each event moves through

	received -> authenticated -> dedup-checked -> routed -> handled

and ends in exactly one Outcome: rejected, malformed, duplicate,
unsupported, handled or failed. Only rejected is reported to the sender as
a refusal; every other outcome is acknowledged, and failures are logged
with the full envelope for offline remediation.

Authentication accepts the tenant's own webhook login (bcrypt hash stored
on the tenant) or the optional global credential from configuration.
Tenants are looked up through a TenantCache; the account API evicts
entries when a tenant changes.

Deduplication uses a MarkerStore. Three backends exist:

  - database: the processed_events table (default, survives restarts)
  - badger: an embedded BadgerDB with per-marker TTL
  - memory: a bounded LRU, for single-process deployments and tests

Routing is a static table:

	reservation.created  -> booking upsert
	reservation.updated  -> booking upsert
	message.received     -> merge into the conversation thread
*/
package ingest
