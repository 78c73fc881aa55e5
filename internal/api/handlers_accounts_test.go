// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/models"
	"github.com/tomtom215/staysync/internal/testinfra"
)

func TestAccounts_RequireAdmin(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.send(http.MethodGet, "/api/v1/accounts/500", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	rec = f.send(http.MethodGet, "/api/v1/accounts/500", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-jwt")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestAccounts_AuthModeNone(t *testing.T) {
	f := newAPIFixture(t, func(c *config.Config) { c.Security.AuthMode = "none" })
	if rec := f.send(http.MethodGet, "/api/v1/accounts/500", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 from the handler", rec.Code)
	}
}

func TestCreateAccount_RegistersWebhookAndSyncs(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	f.remote.AddTenant(700, "s3cret")
	f.remote.SetCollection(700, "listings", testinfra.Records(1, 3, nil))

	rec := f.admin(http.MethodPost, "/api/v1/accounts",
		`{"account_id":700,"client_secret":"s3cret","webhook_login":"hook","webhook_password":"hook-pass-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "s3cret") || strings.Contains(rec.Body.String(), "hook-pass-1") {
		t.Errorf("response leaks a secret: %s", rec.Body.String())
	}

	var resp AccountResponse
	decodeEnvelope(t, rec, &resp)
	if resp.Account == nil || resp.Account.ID != 700 || !resp.Account.IsActive {
		t.Fatalf("account = %+v", resp.Account)
	}
	if resp.Account.CustomerID == "" {
		t.Error("customer_id not generated")
	}
	if resp.Account.WebhookID == nil {
		t.Fatal("webhook_id not set")
	}
	if owner, ok := f.remote.WebhookTenant(*resp.Account.WebhookID); !ok || owner != 700 {
		t.Errorf("remote webhook owner = %d, %v", owner, ok)
	}
	regs := f.remote.CapturesFor(http.MethodPost, "webhooks/unifiedWebhooks")
	if len(regs) != 1 || !strings.Contains(string(regs[0].Body), "https://sync.example.com/webhooks") {
		t.Errorf("registration captures = %+v", regs)
	}
	if !resp.SyncTriggered {
		t.Error("initial sync not triggered")
	}

	f.manager.Wait()
	if n, _ := f.db.CountRecords(ctx, models.ListingSpec, 700); n != 3 {
		t.Errorf("listings = %d, want 3", n)
	}
	tenant, err := f.db.GetTenant(ctx, 700)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.LastSyncAt == nil {
		t.Error("last_sync_at not set after initial sync")
	}

	// The tenant's own webhook credentials are accepted.
	event := `{"event":"reservation.created","accountId":700,"data":{"id":55,"listingMapId":1,"updatedOn":"2026-01-01"}}`
	if rec := f.webhook("hook", "hook-pass-1", event); rec.Code != http.StatusOK {
		t.Errorf("tenant webhook status = %d", rec.Code)
	}
}

func TestCreateAccount_WithoutRegistration(t *testing.T) {
	f := newAPIFixture(t, func(c *config.Config) { c.Webhook.RegisterOnCreate = false })
	f.remote.AddTenant(701, "s3cret")

	rec := f.admin(http.MethodPost, "/api/v1/accounts", `{"account_id":701,"client_secret":"s3cret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp AccountResponse
	decodeEnvelope(t, rec, &resp)
	if resp.Account.WebhookID != nil {
		t.Errorf("webhook_id = %d, registration is disabled", *resp.Account.WebhookID)
	}
	if got := len(f.remote.CapturesFor(http.MethodPost, "webhooks/unifiedWebhooks")); got != 0 {
		t.Errorf("registration calls = %d", got)
	}
}

func TestCreateAccount_Rejections(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing secret", `{"account_id":600}`, http.StatusBadRequest, "MISSING_CLIENT_SECRET"},
		{"blank secret", `{"account_id":600,"client_secret":"   "}`, http.StatusBadRequest, "MISSING_CLIENT_SECRET"},
		{"invalid json", `{"account_id":`, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown field", `{"account_id":600,"client_secret":"s","access_token":"x"}`, http.StatusBadRequest, "INVALID_JSON"},
		{"non-positive id", `{"account_id":0,"client_secret":"s"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"login without password", `{"account_id":600,"client_secret":"s","webhook_login":"hook"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad customer id", `{"account_id":600,"client_secret":"s","customer_id":"abc"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"existing account", `{"account_id":500,"client_secret":"s"}`, http.StatusUnprocessableEntity, "ACCOUNT_EXISTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.admin(http.MethodPost, "/api/v1/accounts", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}

	if _, err := f.db.GetTenant(context.Background(), 600); !errors.Is(err, database.ErrTenantNotFound) {
		t.Errorf("rejected account was stored: %v", err)
	}
}

func TestGetAccount(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")

	rec := f.admin(http.MethodGet, "/api/v1/accounts/500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp AccountResponse
	decodeEnvelope(t, rec, &resp)
	if resp.Account.ID != 500 || resp.SyncStatus != SyncStatusNeverSynced {
		t.Errorf("response = %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("response leaks the client secret: %s", rec.Body.String())
	}

	if rec := f.admin(http.MethodGet, "/api/v1/accounts/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d, want 404", rec.Code)
	}
	if rec := f.admin(http.MethodGet, "/api/v1/accounts/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestUpdateAccount_SecretChangeTriggersFirstSync(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	testinfra.SeedTenant(t, f.db, 500, "old")
	f.remote.AddTenant(500, "new")

	rec := f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"client_secret":"new"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp AccountResponse
	decodeEnvelope(t, rec, &resp)
	if !resp.SyncTriggered {
		t.Errorf("sync not triggered: %+v", resp)
	}
	f.manager.Wait()

	if secret, _ := f.db.ClientSecret(ctx, 500); secret != "new" {
		t.Errorf("secret = %q", secret)
	}
	tenant, _ := f.db.GetTenant(ctx, 500)
	if tenant.LastSyncAt == nil {
		t.Fatal("sync did not complete")
	}

	// Already synced: a new secret no longer triggers.
	f.remote.AddTenant(500, "newer")
	rec = f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"client_secret":"newer"}`)
	resp = AccountResponse{}
	decodeEnvelope(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.SyncTriggered {
		t.Errorf("second update = %d %+v", rec.Code, resp)
	}

	rec = f.admin(http.MethodPatch, "/api/v1/accounts/500", `{}`)
	resp = AccountResponse{}
	decodeEnvelope(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Message != "No fields to update" {
		t.Errorf("empty update = %d %+v", rec.Code, resp)
	}
}

func TestUpdateAccount_WebhookCredentials(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")

	event := `{"event":"reservation.created","accountId":500,"data":{"id":9,"updatedOn":"2026-01-01"}}`
	if rec := f.webhook("hook", "hook-pass-1", event); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status before update = %d, want 401", rec.Code)
	}

	rec := f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"webhook_login":"hook","webhook_password":"hook-pass-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := f.webhook("hook", "hook-pass-1", event); rec.Code != http.StatusOK {
		t.Errorf("status after update = %d, want 200", rec.Code)
	}

	rec = f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"webhook_password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", rec.Code)
	}
}

func TestUpdateAccount_InactiveIsNotFound(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")
	if err := f.db.DeactivateTenant(context.Background(), 500); err != nil {
		t.Fatalf("DeactivateTenant: %v", err)
	}

	rec := f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"client_secret":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteAccount_Soft(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	testinfra.SeedTenant(t, f.db, 500, "secret")
	rec := f.admin(http.MethodPatch, "/api/v1/accounts/500", `{"webhook_login":"hook","webhook_password":"hook-pass-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}

	// Warm the webhook tenant cache.
	event := `{"event":"reservation.created","accountId":500,"data":{"id":9,"updatedOn":"2026-01-01"}}`
	if rec := f.webhook("hook", "hook-pass-1", event); rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	if rec := f.admin(http.MethodDelete, "/api/v1/accounts/500", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	tenant, err := f.db.GetTenant(ctx, 500)
	if err != nil || tenant.IsActive {
		t.Fatalf("tenant after soft delete = %+v, %v", tenant, err)
	}
	if n, _ := f.db.CountRecords(ctx, models.BookingSpec, 500); n != 1 {
		t.Errorf("bookings = %d, soft delete keeps data", n)
	}

	// Evicted from the cache, so the tenant login no longer authenticates.
	event = `{"event":"reservation.updated","accountId":500,"data":{"id":9,"updatedOn":"2026-01-02"}}`
	if rec := f.webhook("hook", "hook-pass-1", event); rec.Code != http.StatusUnauthorized {
		t.Errorf("webhook after soft delete = %d, want 401", rec.Code)
	}

	if rec := f.admin(http.MethodDelete, "/api/v1/accounts/500?soft=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad soft flag status = %d, want 400", rec.Code)
	}
	if rec := f.admin(http.MethodDelete, "/api/v1/accounts/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d, want 404", rec.Code)
	}
}

func TestDeleteAccount_HardRemovesWebhookAndData(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	f.remote.AddTenant(700, "s3cret")
	f.remote.SetCollection(700, "listings", testinfra.Records(1, 2, nil))

	rec := f.admin(http.MethodPost, "/api/v1/accounts", `{"account_id":700,"client_secret":"s3cret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created AccountResponse
	decodeEnvelope(t, rec, &created)
	if created.Account.WebhookID == nil {
		t.Fatal("webhook not registered with global credentials")
	}
	f.manager.Wait()

	if rec := f.admin(http.MethodDelete, "/api/v1/accounts/700?soft=false", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := f.remote.WebhookTenant(*created.Account.WebhookID); ok {
		t.Error("remote webhook still registered")
	}
	if _, err := f.db.GetTenant(ctx, 700); !errors.Is(err, database.ErrTenantNotFound) {
		t.Errorf("GetTenant after hard delete: %v", err)
	}
	if n, _ := f.db.CountRecords(ctx, models.ListingSpec, 700); n != 0 {
		t.Errorf("listings = %d after hard delete", n)
	}
}

func TestTriggerSync(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	testinfra.SeedTenant(t, f.db, 500, "secret")
	f.remote.AddTenant(500, "secret")
	f.remote.SetCollection(500, "listings", testinfra.Records(1, 4, nil))

	rec := f.admin(http.MethodPost, "/api/v1/accounts/500/sync?dry_run=true", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SyncTriggerResponse
	decodeEnvelope(t, rec, &resp)
	if !resp.DryRun || resp.AccountID != 500 {
		t.Errorf("response = %+v", resp)
	}
	f.manager.Wait()
	if n, _ := f.db.CountRecords(ctx, models.ListingSpec, 500); n != 0 {
		t.Errorf("dry run wrote %d listings", n)
	}

	rec = f.admin(http.MethodPost, "/api/v1/accounts/500/sync", "")
	resp = SyncTriggerResponse{}
	decodeEnvelope(t, rec, &resp)
	if rec.Code != http.StatusAccepted || resp.DryRun {
		t.Fatalf("default run = %d %+v", rec.Code, resp)
	}
	f.manager.Wait()
	if n, _ := f.db.CountRecords(ctx, models.ListingSpec, 500); n != 4 {
		t.Errorf("listings = %d, want 4", n)
	}

	if rec := f.admin(http.MethodPost, "/api/v1/accounts/999/sync", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d, want 404", rec.Code)
	}
	if rec := f.admin(http.MethodPost, "/api/v1/accounts/500/sync?dry_run=perhaps", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad dry_run status = %d, want 400", rec.Code)
	}
}

func TestTriggerSync_InFlight(t *testing.T) {
	db := testinfra.OpenTestDB(t)
	testinfra.SeedTenant(t, db, 500, "secret")
	syncer := &stubSyncer{busy: true}
	h := NewHandler(db, &config.Config{}, syncer, nil, nil, nil)
	srv := NewRouter(h, nil, auth.NewMiddleware(nil, "none")).SetupChi()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/accounts/500/sync", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "SYNC_IN_PROGRESS" {
		t.Errorf("code = %s", code)
	}
	if len(syncer.triggers) != 0 {
		t.Errorf("triggers = %v", syncer.triggers)
	}
}

func TestGetThread(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")
	testinfra.SeedTenant(t, f.db, 501, "secret")

	for _, body := range []string{
		`{"event":"message.received","accountId":500,"data":{"id":72,"conversationId":7,"reservationId":100,"listingMapId":3,"body":"see you","isIncoming":0,"date":"2026-03-02 10:00:00"}}`,
		`{"event":"message.received","accountId":500,"data":{"id":71,"conversationId":7,"reservationId":100,"listingMapId":3,"body":"hello","isIncoming":1,"date":"2026-03-01 09:00:00"}}`,
	} {
		if rec := f.webhook("global", "global-pass", body); rec.Code != http.StatusOK {
			t.Fatalf("webhook status = %d", rec.Code)
		}
	}

	rec := f.admin(http.MethodGet, "/api/v1/accounts/500/threads/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view models.ThreadView
	decodeEnvelope(t, rec, &view)
	if view.ThreadID != "7" || view.ReservationID != "100" || len(view.Messages) != 2 {
		t.Fatalf("view = %+v", view)
	}
	first, second := view.Messages[0], view.Messages[1]
	if first.Body != "hello" || first.Sender != "them" {
		t.Errorf("first message = %+v", first)
	}
	if second.Body != "see you" || second.Sender != "us" {
		t.Errorf("second message = %+v", second)
	}

	if rec := f.admin(http.MethodGet, "/api/v1/accounts/501/threads/7", ""); rec.Code != http.StatusNotFound {
		t.Errorf("other tenant status = %d, want 404", rec.Code)
	}
	if rec := f.admin(http.MethodGet, "/api/v1/accounts/500/threads/8", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown thread status = %d, want 404", rec.Code)
	}
}
