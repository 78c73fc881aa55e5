// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/staysync/internal/models"
)

// RecordSyncState stores the outcome of one entity-kind pull. A failed pull
// keeps the previous last_success_at.
func (db *DB) RecordSyncState(ctx context.Context, st models.SyncState) error {
	var success interface{}
	if st.LastSuccessAt != nil {
		success = st.LastSuccessAt.UTC()
	}
	query := fmt.Sprintf(`INSERT INTO sync_state (tenant_id, entity_kind, last_attempt_at, last_success_at, last_error, records)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, entity_kind) DO UPDATE SET
			last_attempt_at = excluded.last_attempt_at,
			last_success_at = COALESCE(excluded.last_success_at, %s),
			last_error = excluded.last_error,
			records = excluded.records`,
		db.dialect.existing("sync_state", "last_success_at"))

	return withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, query, st.TenantID, string(st.EntityKind),
			st.LastAttemptAt.UTC(), success, nullString(st.LastError), st.Records)
		if err != nil {
			return fmt.Errorf("record sync state: %w", err)
		}
		return nil
	})
}

// ListSyncStates returns a tenant's per-kind sync state ordered by kind.
func (db *DB) ListSyncStates(ctx context.Context, tenantID int64) ([]models.SyncState, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT tenant_id, entity_kind, last_attempt_at, last_success_at, last_error, records
		FROM sync_state WHERE tenant_id = $1 ORDER BY entity_kind`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sync state: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.SyncState
	for rows.Next() {
		var (
			st      models.SyncState
			kind    string
			success sql.NullTime
			lastErr sql.NullString
		)
		if err := rows.Scan(&st.TenantID, &kind, &st.LastAttemptAt, &success, &lastErr, &st.Records); err != nil {
			return nil, err
		}
		st.EntityKind = models.EntityKind(kind)
		st.LastAttemptAt = st.LastAttemptAt.UTC()
		if success.Valid {
			ts := success.Time.UTC()
			st.LastSuccessAt = &ts
		}
		st.LastError = lastErr.String
		out = append(out, st)
	}
	return out, rows.Err()
}
