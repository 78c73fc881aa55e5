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

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
)

const tenantColumns = `id, customer_id, client_secret, access_token, webhook_login,
	webhook_password_hash, webhook_id, is_active, last_sync_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var (
		t          models.Tenant
		customerID sql.NullString
		token      sql.NullString
		login      sql.NullString
		hash       sql.NullString
		webhookID  sql.NullInt64
		lastSyncAt sql.NullTime
	)
	err := row.Scan(&t.ID, &customerID, &t.ClientSecret, &token, &login,
		&hash, &webhookID, &t.IsActive, &lastSyncAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.CustomerID = customerID.String
	t.AccessToken = token.String
	t.WebhookLogin = login.String
	t.WebhookPasswordHash = hash.String
	if webhookID.Valid {
		id := webhookID.Int64
		t.WebhookID = &id
	}
	if lastSyncAt.Valid {
		ts := lastSyncAt.Time.UTC()
		t.LastSyncAt = &ts
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateTenant inserts a new tenant. CreatedAt and UpdatedAt are set here.
func (db *DB) CreateTenant(ctx context.Context, t *models.Tenant) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, t.ID).Scan(&exists)
	switch {
	case err == nil:
		return ErrTenantExists
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check tenant: %w", err)
	}

	now := time.Now().UTC()
	var webhookID interface{}
	if t.WebhookID != nil {
		webhookID = *t.WebhookID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10)`,
		t.ID, nullString(t.CustomerID), t.ClientSecret, nullString(t.AccessToken), nullString(t.WebhookLogin),
		nullString(t.WebhookPasswordHash), webhookID, t.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// GetTenant returns the tenant with id, active or not.
func (db *DB) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %d: %w", id, err)
	}
	return t, nil
}

// ListTenants returns all tenants ordered by id.
func (db *DB) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListActiveTenantIDs returns ids of active tenants in ascending order.
func (db *DB) ListActiveTenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM tenants WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TenantUpdate lists mutable tenant fields. Nil fields are left unchanged.
type TenantUpdate struct {
	CustomerID          *string
	ClientSecret        *string
	WebhookLogin        *string
	WebhookPasswordHash *string
	IsActive            *bool
}

// UpdateTenant applies upd and returns the updated tenant. Changing the
// client secret clears the stored access token, since it was minted with the
// old secret.
func (db *DB) UpdateTenant(ctx context.Context, id int64, upd TenantUpdate) (*models.Tenant, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	cur, err := scanTenant(tx.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %d: %w", id, err)
	}

	if upd.CustomerID != nil {
		cur.CustomerID = *upd.CustomerID
	}
	if upd.ClientSecret != nil && *upd.ClientSecret != cur.ClientSecret {
		cur.ClientSecret = *upd.ClientSecret
		cur.AccessToken = ""
	}
	if upd.WebhookLogin != nil {
		cur.WebhookLogin = *upd.WebhookLogin
	}
	if upd.WebhookPasswordHash != nil {
		cur.WebhookPasswordHash = *upd.WebhookPasswordHash
	}
	if upd.IsActive != nil {
		cur.IsActive = *upd.IsActive
	}
	cur.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `UPDATE tenants SET customer_id = $1, client_secret = $2, access_token = $3,
		webhook_login = $4, webhook_password_hash = $5, is_active = $6, updated_at = $7 WHERE id = $8`,
		nullString(cur.CustomerID), cur.ClientSecret, nullString(cur.AccessToken), nullString(cur.WebhookLogin),
		nullString(cur.WebhookPasswordHash), cur.IsActive, cur.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update tenant %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cur, nil
}

// DeactivateTenant marks the tenant inactive. Its data is kept.
func (db *DB) DeactivateTenant(ctx context.Context, id int64) error {
	active := false
	_, err := db.UpdateTenant(ctx, id, TenantUpdate{IsActive: &active})
	return err
}

// DeleteTenant removes the tenant and every row it owns.
func (db *DB) DeleteTenant(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	// Children first; DuckDB has no cascading foreign keys.
	for i := len(models.SyncOrder) - 1; i >= 0; i-- {
		table := models.SyncOrder[i].Table
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1`, id); err != nil {
			return fmt.Errorf("delete %s for tenant %d: %w", table, id, err)
		}
	}
	for _, table := range []string{"sync_state", "processed_events"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1`, id); err != nil {
			return fmt.Errorf("delete %s for tenant %d: %w", table, id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTenantNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.Info().Int64("tenant_id", id).Msg("Tenant deleted")
	return nil
}

// SetWebhookID records (or clears, with nil) the remote webhook registration.
func (db *DB) SetWebhookID(ctx context.Context, id int64, webhookID *int64) error {
	var v interface{}
	if webhookID != nil {
		v = *webhookID
	}
	return db.execTenant(ctx, id, `UPDATE tenants SET webhook_id = $1, updated_at = $2 WHERE id = $3`,
		v, time.Now().UTC(), id)
}

// MarkSynced sets last_sync_at.
func (db *DB) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	return db.execTenant(ctx, id, `UPDATE tenants SET last_sync_at = $1 WHERE id = $2`, at.UTC(), id)
}

// ClientSecret returns the secret used to mint bearer credentials. The
// tenant id doubles as the client id.
func (db *DB) ClientSecret(ctx context.Context, id int64) (string, error) {
	var secret string
	err := db.conn.QueryRowContext(ctx, `SELECT client_secret FROM tenants WHERE id = $1`, id).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTenantNotFound
	}
	return secret, err
}

// AccessToken returns the stored bearer credential, or "" if none was minted.
func (db *DB) AccessToken(ctx context.Context, id int64) (string, error) {
	var token sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT access_token FROM tenants WHERE id = $1`, id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTenantNotFound
	}
	if err != nil {
		return "", err
	}
	return token.String, nil
}

// SaveAccessToken persists a freshly minted bearer credential.
func (db *DB) SaveAccessToken(ctx context.Context, id int64, token string) error {
	return db.execTenant(ctx, id, `UPDATE tenants SET access_token = $1, updated_at = $2 WHERE id = $3`,
		token, time.Now().UTC(), id)
}

// CountActiveTenants returns the number of active tenants.
func (db *DB) CountActiveTenants(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants WHERE is_active`).Scan(&n)
	return n, err
}

// requireTenant fails with ErrTenantNotFound unless tenant id exists. DuckDB
// does not enforce the tenant foreign key, so writers check inside their
// transaction.
func requireTenant(ctx context.Context, q queryRower, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tenant %d: %w", id, ErrTenantNotFound)
	}
	if err != nil {
		return fmt.Errorf("check tenant %d: %w", id, err)
	}
	return nil
}

func (db *DB) execTenant(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tenant %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTenantNotFound
	}
	return nil
}
