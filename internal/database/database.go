// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/logging"
)

// MemoryPath opens a private in-memory DuckDB database.
const MemoryPath = ":memory:"

// DB wraps the relational connection pool and provides data access methods.
type DB struct {
	conn    *sql.DB
	cfg     *config.DatabaseConfig
	dialect Dialect

	// markerMu serializes processed-event check-and-insert so concurrent
	// deliveries of one event cannot both observe "first".
	markerMu sync.Mutex

	// threadMu serializes read-modify-write merges of message threads.
	threadMu sync.Mutex
}

// Open connects to the configured backend and creates the schema.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	var (
		conn    *sql.DB
		dialect Dialect
		err     error
	)

	switch cfg.Driver {
	case "postgres":
		dialect = DialectPostgres
		conn, err = sql.Open("postgres", cfg.URL)
	case "duckdb", "":
		dialect = DialectDuckDB
		conn, err = openDuckDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg, dialect: dialect}
	db.configureConnectionPool()

	ctx, cancel := schemaContext()
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		closeWithLog(conn, "database")
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := db.createTables(ctx); err != nil {
		closeWithLog(conn, "database")
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("driver", dialect.String()).Msg("Database ready")
	return db, nil
}

func openDuckDB(path string) (*sql.DB, error) {
	if path == MemoryPath {
		return sql.Open("duckdb", "")
	}
	// 0750 per gosec G301
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	return sql.Open("duckdb", path)
}

func (db *DB) configureConnectionPool() {
	maxOpen := db.cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.conn.SetMaxOpenConns(maxOpen)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Dialect reports the active backend.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Conn exposes the pool for tests and health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// withConflictRetry runs fn, retrying a bounded number of times when DuckDB
// reports an optimistic transaction conflict.
func withConflictRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !isTransactionConflict(err) {
			return err
		}
		logging.Debug().Int("attempt", i+1).Err(err).Msg("Transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
		}
	}
	return err
}
