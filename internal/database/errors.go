// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/tomtom215/staysync/internal/logging"
)

var (
	// ErrTenantNotFound is returned when no tenant row has the given id.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists is returned by CreateTenant for a duplicate id.
	ErrTenantExists = errors.New("tenant already exists")

	// ErrRecordNotFound is returned when an entity row does not exist.
	ErrRecordNotFound = errors.New("record not found")
)

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// rollbackQuietly rolls back tx, ignoring ErrTxDone after a commit.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Transaction rollback failed")
	}
}

// isTransactionConflict reports whether err is a DuckDB optimistic
// concurrency conflict that may succeed on retry.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "could not serialize access")
}
