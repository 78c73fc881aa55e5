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

	"github.com/tomtom215/staysync/internal/models"
)

const recordColumns = `id, tenant_id, parent_id, CAST(payload AS VARCHAR), created_at, updated_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getRecord(ctx context.Context, q queryRower, spec models.EntitySpec, id string) (*models.Record, error) {
	var (
		rec     models.Record
		parent  sql.NullString
		payload string
	)
	err := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM `+spec.Table+` WHERE id = $1`, id).
		Scan(&rec.ID, &rec.TenantID, &parent, &payload, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", spec.Table, id, err)
	}
	rec.ParentID = parent.String
	rec.Payload = []byte(payload)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// GetRecord returns one stored entity row.
func (db *DB) GetRecord(ctx context.Context, spec models.EntitySpec, id string) (*models.Record, error) {
	return getRecord(ctx, db.conn, spec, id)
}

// ListRecordIDs returns the ids of a tenant's rows of one kind, ascending.
func (db *DB) ListRecordIDs(ctx context.Context, spec models.EntitySpec, tenantID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM `+spec.Table+` WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", spec.Table, err)
	}
	defer closeWithLog(rows, "rows")

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountRecords returns the number of a tenant's rows of one kind.
func (db *DB) CountRecords(ctx context.Context, spec models.EntitySpec, tenantID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+spec.Table+` WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Table, err)
	}
	return n, nil
}
