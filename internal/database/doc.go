// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

/*
Package database is the relational store for tenants, mirrored entities,
per-kind sync state and processed push-event markers.

Two backends share one code path:

  - DuckDB (embedded, default): a single file opened through duckdb-go.
  - PostgreSQL: selected by DATABASE_URL, opened through lib/pq.

The small set of SQL differences between them (JSON column type, timestamp
type, how the existing row is referenced inside ON CONFLICT DO UPDATE) is
isolated in Dialect.

# Entity tables

listings, bookings and message_threads share one shape:

	id         VARCHAR PRIMARY KEY  -- remote identifier, string form
	tenant_id  BIGINT               -- owning account
	parent_id  VARCHAR              -- listing for bookings, booking for threads
	payload    JSON / JSONB         -- verbatim remote object
	created_at TIMESTAMP
	updated_at TIMESTAMP            -- advanced only when payload changes

Writer performs chunked, idempotent upserts: a row whose payload is
structurally identical to the stored one is left untouched, so repeated
pulls of unchanged data produce no writes.
*/
package database
