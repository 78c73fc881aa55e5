// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

/*
Package models defines the data structures shared across Staysync.

Entity records (listings, bookings, message threads) are stored as the verbatim
JSON payload returned by the remote API. The only fields this layer reads from
a payload are the identifier and, for child kinds, the parent identifier; both
are described per kind by an EntitySpec.

Key types:

  - Tenant: one remote account with its credentials and sync bookkeeping
  - EntitySpec: table, endpoint and identifier fields of one entity kind
  - Record: one entity row (id, tenant, parent, payload)
  - Page: one page of a paginated remote listing
  - ThreadPayload / ThreadView: stored message thread and its normalized view
  - APIResponse: JSON envelope returned by every admin endpoint
*/
package models
