// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package logging provides zerolog-based structured logging for Staysync.
//
// A single global logger is configured once at startup from the logging
// section of the application config and used everywhere else through the
// level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Int64("tenant_id", id).Msg("Sync started")
//	logging.Error().Err(err).Str("entity_kind", "bookings").Msg("Fetch failed")
//
// # Context
//
// HTTP middleware stores a request ID and a correlation ID in the request
// context. Ctx returns a logger that carries both, so log lines emitted
// while handling one webhook or one manual sync can be joined later:
//
//	logging.Ctx(ctx).Warn().Str("event_key", key).Msg("Duplicate event")
//
// Background sync runs get their own correlation ID through
// ContextWithNewCorrelationID.
//
// # slog
//
// The supervisor tree logs through log/slog (via sutureslog). NewSlogLogger
// returns an slog.Logger whose records are written by zerolog, keeping a
// single output stream.
//
// # Configuration
//
//	LOG_LEVEL   trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  json, console (default: json)
//	LOG_CALLER  include caller file:line (default: false)
//
// Always terminate an event with Msg or Send; an unterminated chain is never
// written.
package logging
