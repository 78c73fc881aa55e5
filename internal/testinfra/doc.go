// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package testinfra provides shared test infrastructure.
//
// # Fake remote API
//
// RemoteAPI is an httptest server speaking the property-management API:
// paginated collections addressed by limit/offset, token minting, webhook
// registration, and scripted faults per path.
//
//	api := testinfra.NewRemoteAPI(t)
//	api.AddTenant(500, "secret")
//	api.SetCollection(500, "listings", testinfra.Records(1, 237, nil))
//	api.FailStatus("listings", http.StatusTooManyRequests, 2)
//
// # Databases
//
// OpenTestDB opens an in-memory DuckDB store with the schema applied.
// Under the integration build tag, NewPostgresContainer starts a real
// PostgreSQL server with testcontainers-go:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, pg.Container)
//
// These tests require Docker and are skipped when it is unavailable.
package testinfra
