// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/models"
)

func TestManager_TriggerTenant(t *testing.T) {
	f := newSyncFixture(t)
	m := NewManager(f.orch, config.SyncConfig{Interval: time.Hour})

	if !m.TriggerTenant(500, false) {
		t.Fatal("TriggerTenant refused an idle tenant")
	}
	m.Wait()

	n, err := f.db.CountRecords(context.Background(), models.ListingSpec, 500)
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 3 {
		t.Errorf("listings = %d, want 3", n)
	}
}

func TestManager_TriggerTenantRefusesWhileInFlight(t *testing.T) {
	f := newSyncFixture(t)
	m := NewManager(f.orch, config.SyncConfig{Interval: time.Hour})

	f.orch.acquire(500)
	defer f.orch.release(500)

	if m.TriggerTenant(500, false) {
		t.Error("TriggerTenant accepted a tenant with a run in flight")
	}
}

// panickingFetcher simulates a fetch path that crashes.
type panickingFetcher struct{}

func (panickingFetcher) FetchAllPages(context.Context, string, int64, url.Values) ([]json.RawMessage, error) {
	panic("fetch exploded")
}

func TestManager_TriggeredPanicIsContained(t *testing.T) {
	f := newSyncFixture(t)
	orch := NewOrchestrator(panickingFetcher{}, f.db, DatabaseWriters(f.db, 0), 4)
	m := NewManager(orch, config.SyncConfig{Interval: time.Hour})

	report, err := orch.SyncTenant(context.Background(), 500, SyncOptions{})
	if err == nil || report != nil {
		t.Fatalf("SyncTenant = %v, %v; want panic reported as error", report, err)
	}
	if orch.InFlight(500) {
		t.Fatal("tenant still marked in flight after panic")
	}

	if !m.TriggerTenant(500, false) {
		t.Fatal("TriggerTenant refused an idle tenant")
	}
	m.Wait()

	if orch.InFlight(500) {
		t.Error("tenant still marked in flight after triggered panic")
	}
}

func TestManager_RunInitialSyncThenStops(t *testing.T) {
	f := newSyncFixture(t)
	m := NewManager(f.orch, config.SyncConfig{Interval: time.Hour, InitialSync: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(30 * time.Second)
	for m.LastSummary() == nil {
		select {
		case <-deadline:
			cancel()
			t.Fatal("initial sync did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if got := len(m.LastSummary().Reports); got != 1 {
		t.Errorf("reports = %d, want 1", got)
	}
}
