// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package main is the entry point for the Staysync server.
//
// Staysync mirrors listings, bookings and conversation threads from a
// property-management REST API into a relational store for every
// registered account, and keeps the mirror fresh from pushed webhook events.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, then environment (Koanf v2)
//  2. Database: embedded DuckDB file, or PostgreSQL when DATABASE_URL is set
//  3. Remote client: paced, retried, circuit-broken page fetcher with per-tenant tokens
//  4. Sync manager: scheduled full pulls plus on-demand tenant runs
//  5. Webhook ingestor: Basic auth, dedup markers and entity writers
//  6. HTTP server: account API, webhook receiver, health and metrics
//
// All long-running parts run under a suture supervisor tree.
//
// # Configuration
//
// Commonly set variables:
//
//	REMOTE_BASE_URL           remote API root (default https://api.hostaway.com/v1/)
//	DATABASE_URL              postgres DSN; unset means DuckDB at DUCKDB_PATH
//	SYNC_INTERVAL             time between full pulls (default 6h)
//	SYNC_ON_STARTUP           run a full pull at startup
//	DRY_RUN                   fetch without writing
//	WEBHOOK_USERNAME          optional global webhook Basic login
//	WEBHOOK_PASSWORD          optional global webhook Basic password
//	WEBHOOK_BASE_URL          public URL advertised on webhook registration
//	AUTH_MODE                 jwt or none for the account API
//	JWT_SECRET                32+ character signing secret
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// in-flight requests, triggered tenant syncs run to completion, and the
// marker store and database are closed last.
package main
