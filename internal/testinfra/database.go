// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/models"
)

// dbSemaphore serializes DuckDB usage across tests in one package. Parallel
// CGO-heavy tests can hang under CI resource pressure.
var dbSemaphore = make(chan struct{}, 1)

// OpenTestDB opens a fresh in-memory DuckDB store with the schema applied.
// The store is closed, and the semaphore released, on test cleanup.
func OpenTestDB(t testing.TB) *database.DB {
	t.Helper()

	dbSemaphore <- struct{}{}
	t.Cleanup(func() { <-dbSemaphore })

	type result struct {
		db  *database.DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := database.Open(&config.DatabaseConfig{Driver: "duckdb", Path: database.MemoryPath, MaxOpenConns: 4})
		resultCh <- result{db, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("open test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

// SeedTenant inserts an active tenant with the given client secret.
func SeedTenant(t testing.TB, db *database.DB, id int64, secret string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{ID: id, ClientSecret: secret, IsActive: true}
	if err := db.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("seed tenant %d: %v", id, err)
	}
	return tenant
}
