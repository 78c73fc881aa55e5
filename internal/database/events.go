// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MarkProcessed records a push-event dedup key. It returns true when the key
// was not seen before. Check and insert happen under one lock and one
// transaction, so of two concurrent deliveries exactly one sees true.
func (db *DB) MarkProcessed(ctx context.Context, key string, tenantID int64, kind string) (bool, error) {
	db.markerMu.Lock()
	defer db.markerMu.Unlock()

	var first bool
	err := withConflictRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer rollbackQuietly(tx)

		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE event_key = $1`, key).Scan(&one)
		switch {
		case err == nil:
			first = false
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check marker: %w", err)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO processed_events (event_key, tenant_id, event_kind, created_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT (event_key) DO NOTHING`,
			key, tenantID, kind, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert marker: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		first = true
		return nil
	})
	return first, err
}

// PruneProcessedEvents deletes markers created before cutoff and returns how
// many were removed.
func (db *DB) PruneProcessedEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM processed_events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
