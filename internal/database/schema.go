// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/staysync/internal/models"
)

// schemaContext bounds schema creation on slow disks or remote servers.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates every table and index if missing. DuckDB gets no
// foreign keys: it rejects updates to referenced parent rows, so child rows
// are removed explicitly by DeleteTenant on both backends.
func (db *DB) createTables(ctx context.Context) error {
	for _, q := range db.schemaStatements() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema statement failed: %w\n%s", err, q)
		}
	}
	return nil
}

func (db *DB) schemaStatements() []string {
	ts := db.dialect.timestampType()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenants (
			id BIGINT PRIMARY KEY,
			customer_id VARCHAR,
			client_secret VARCHAR NOT NULL,
			access_token VARCHAR,
			webhook_login VARCHAR,
			webhook_password_hash VARCHAR,
			webhook_id BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync_at %[1]s,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL
		)`, ts),
	}

	tenantRef := ""
	if db.dialect == DialectPostgres {
		tenantRef = " REFERENCES tenants(id) ON DELETE CASCADE"
	}

	for _, spec := range models.SyncOrder {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR PRIMARY KEY,
				tenant_id BIGINT NOT NULL%s,
				parent_id VARCHAR,
				payload %s NOT NULL,
				created_at %s NOT NULL,
				updated_at %s NOT NULL
			)`, spec.Table, tenantRef, db.dialect.jsonType(), ts, ts))
		// DuckDB cannot assign indexed columns in ON CONFLICT DO UPDATE.
		if db.dialect == DialectPostgres {
			stmts = append(stmts,
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tenant ON %s (tenant_id)`, spec.Table, spec.Table))
		}
	}

	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_state (
			tenant_id BIGINT NOT NULL%s,
			entity_kind VARCHAR NOT NULL,
			last_attempt_at %s NOT NULL,
			last_success_at %s,
			last_error VARCHAR,
			records INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, entity_kind)
		)`, tenantRef, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS processed_events (
			event_key VARCHAR PRIMARY KEY,
			tenant_id BIGINT,
			event_kind VARCHAR,
			created_at %s NOT NULL
		)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_processed_events_created ON processed_events (created_at)`,
	)
	return stmts
}
