// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/staysync/internal/models"
	"github.com/tomtom215/staysync/internal/testinfra"
)

const bookingEvent = `{"object":"reservation","event":"reservation.created","accountId":500,
	"payload":{"data":{"id":100,"listingMapId":1,"guestName":"Ana","updatedOn":"2026-03-01 10:00:00"}}}`

func TestWebhook_Responses(t *testing.T) {
	f := newAPIFixture(t, nil)
	testinfra.SeedTenant(t, f.db, 500, "secret")

	tests := []struct {
		name       string
		user, pass string
		body       string
		wantStatus int
		wantAck    string
	}{
		{"no credentials", "", "", bookingEvent, http.StatusUnauthorized, "rejected"},
		{"wrong password", "global", "nope", bookingEvent, http.StatusUnauthorized, "rejected"},
		{"global credentials", "global", "global-pass", bookingEvent, http.StatusOK, "accepted"},
		{"redelivery", "global", "global-pass", bookingEvent, http.StatusOK, "accepted"},
		{"malformed body", "global", "global-pass", `{"event":`, http.StatusOK, "accepted"},
		{"unsupported kind", "global", "global-pass", `{"event":"listing.deleted","accountId":500,"data":{"id":1}}`, http.StatusOK, "accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.webhook(tt.user, tt.pass, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			want := `{"status":"` + tt.wantAck + `"}`
			if got := strings.TrimSpace(rec.Body.String()); got != want {
				t.Errorf("body = %s, want %s", got, want)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}

	n, err := f.db.CountRecords(context.Background(), models.BookingSpec, 500)
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
}

func TestWebhook_OversizedBodyStillAuthenticates(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.cfg.Webhook.MaxBodyBytes = 16
	testinfra.SeedTenant(t, f.db, 500, "secret")

	if rec := f.webhook("", "", bookingEvent); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous oversized status = %d, want 401", rec.Code)
	}
	if rec := f.webhook("global", "global-pass", bookingEvent); rec.Code != http.StatusOK {
		t.Errorf("authenticated oversized status = %d, want 200", rec.Code)
	}
	if n, _ := f.db.CountRecords(context.Background(), models.BookingSpec, 500); n != 0 {
		t.Errorf("bookings = %d, oversized body must not be stored", n)
	}
}
