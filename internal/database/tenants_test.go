// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/tomtom215/staysync/internal/models"
)

func TestCreateAndGetTenant(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{
		ID:           42,
		CustomerID:   "0b8f5a1e-4b0e-4b8e-9a51-1f2c3d4e5f60",
		ClientSecret: "s3cret",
		WebhookLogin: "hook",
		IsActive:     true,
	}
	checkNoError(t, db.CreateTenant(ctx, tenant))
	if tenant.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := db.GetTenant(ctx, 42)
	checkNoError(t, err)
	checkStringEqual(t, "customer_id", got.CustomerID, tenant.CustomerID)
	checkStringEqual(t, "client_secret", got.ClientSecret, "s3cret")
	checkStringEqual(t, "webhook_login", got.WebhookLogin, "hook")
	checkBool(t, "active", got.IsActive, true)
	checkBool(t, "has credential", got.HasCredential(), false)
	if got.LastSyncAt != nil {
		t.Errorf("LastSyncAt = %v, want nil", got.LastSyncAt)
	}

	err = db.CreateTenant(ctx, &models.Tenant{ID: 42, ClientSecret: "x", IsActive: true})
	if !errors.Is(err, ErrTenantExists) {
		t.Errorf("duplicate create err = %v, want ErrTenantExists", err)
	}

	_, err = db.GetTenant(ctx, 99)
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("missing tenant err = %v, want ErrTenantNotFound", err)
	}
}

func TestUpdateTenant_SecretChangeClearsToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedTenant(t, db, 1)

	checkNoError(t, db.SaveAccessToken(ctx, 1, "tok-1"))
	token, err := db.AccessToken(ctx, 1)
	checkNoError(t, err)
	checkStringEqual(t, "token", token, "tok-1")

	same := "secret"
	got, err := db.UpdateTenant(ctx, 1, TenantUpdate{ClientSecret: &same})
	checkNoError(t, err)
	checkStringEqual(t, "token kept", got.AccessToken, "tok-1")

	changed := "rotated"
	got, err = db.UpdateTenant(ctx, 1, TenantUpdate{ClientSecret: &changed})
	checkNoError(t, err)
	checkStringEqual(t, "token cleared", got.AccessToken, "")

	secret, err := db.ClientSecret(ctx, 1)
	checkNoError(t, err)
	checkStringEqual(t, "secret", secret, "rotated")

	_, err = db.UpdateTenant(ctx, 2, TenantUpdate{ClientSecret: &changed})
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("update missing err = %v, want ErrTenantNotFound", err)
	}
}

func TestListActiveTenantIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []int64{30, 10, 20} {
		seedTenant(t, db, id)
	}
	checkNoError(t, db.DeactivateTenant(ctx, 20))

	ids, err := db.ListActiveTenantIDs(ctx)
	checkNoError(t, err)
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 30 {
		t.Errorf("active ids = %v, want [10 30]", ids)
	}

	n, err := db.CountActiveTenants(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "active count", n, 2)

	all, err := db.ListTenants(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "all tenants", len(all), 3)
}

func TestDeleteTenant_RemovesOwnedRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedTenant(t, db, 1)
	seedTenant(t, db, 2)

	for _, tenant := range []int64{1, 2} {
		_, err := NewWriter(db, models.ListingSpec, 0, false).UpsertPayloads(ctx, tenant,
			raws(t, `{"id":"L`+strconv.FormatInt(tenant, 10)+`"}`))
		checkNoError(t, err)
		_, err = NewWriter(db, models.BookingSpec, 0, false).UpsertPayloads(ctx, tenant,
			raws(t, `{"id":"B`+strconv.FormatInt(tenant, 10)+`","listingMapId":"L1"}`))
		checkNoError(t, err)
	}
	_, err := db.MarkProcessed(ctx, "evt-1", 1, "reservation.created")
	checkNoError(t, err)
	checkNoError(t, db.RecordSyncState(ctx, models.SyncState{TenantID: 1, EntityKind: models.KindListing, LastAttemptAt: time.Now()}))

	checkNoError(t, db.DeleteTenant(ctx, 1))

	_, err = db.GetTenant(ctx, 1)
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("deleted tenant err = %v, want ErrTenantNotFound", err)
	}
	for _, spec := range []models.EntitySpec{models.ListingSpec, models.BookingSpec} {
		n, err := db.CountRecords(ctx, spec, 1)
		checkNoError(t, err)
		checkIntEqual(t, spec.Table+" for deleted tenant", n, 0)

		n, err = db.CountRecords(ctx, spec, 2)
		checkNoError(t, err)
		checkIntEqual(t, spec.Table+" for other tenant", n, 1)
	}
	states, err := db.ListSyncStates(ctx, 1)
	checkNoError(t, err)
	checkIntEqual(t, "sync states", len(states), 0)

	if err := db.DeleteTenant(ctx, 1); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("second delete err = %v, want ErrTenantNotFound", err)
	}
}

func TestWebhookIDAndLastSync(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedTenant(t, db, 1)

	hook := int64(555)
	checkNoError(t, db.SetWebhookID(ctx, 1, &hook))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checkNoError(t, db.MarkSynced(ctx, 1, at))

	got, err := db.GetTenant(ctx, 1)
	checkNoError(t, err)
	if got.WebhookID == nil || *got.WebhookID != 555 {
		t.Errorf("webhook id = %v, want 555", got.WebhookID)
	}
	if got.LastSyncAt == nil {
		t.Fatal("LastSyncAt = nil")
	}
	checkTimeEqual(t, "last_sync_at", *got.LastSyncAt, at)

	checkNoError(t, db.SetWebhookID(ctx, 1, nil))
	got, err = db.GetTenant(ctx, 1)
	checkNoError(t, err)
	if got.WebhookID != nil {
		t.Errorf("webhook id = %v, want nil", *got.WebhookID)
	}

	if err := db.MarkSynced(ctx, 9, at); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("mark missing tenant err = %v, want ErrTenantNotFound", err)
	}
}
