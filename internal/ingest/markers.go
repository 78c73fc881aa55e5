// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/staysync/internal/cache"
	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/logging"
)

// Marker store backends.
const (
	BackendDatabase = "database"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// MarkerStore is the processed-event marker set.
type MarkerStore interface {
	// MarkProcessed records key and returns true when it was not seen
	// before. Concurrent calls with one key return true exactly once.
	MarkProcessed(ctx context.Context, key string, tenantID int64, kind string) (bool, error)
	// Prune drops markers created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// NewMarkerStore opens the backend selected by cfg.DedupBackend.
func NewMarkerStore(cfg config.WebhookConfig, db *database.DB) (MarkerStore, error) {
	switch cfg.DedupBackend {
	case "", BackendDatabase:
		if db == nil {
			return nil, fmt.Errorf("database marker store requires a database")
		}
		return NewDatabaseMarkers(db), nil
	case BackendBadger:
		return OpenBadgerMarkers(cfg.DedupPath, cfg.Retention)
	case BackendMemory:
		return NewMemoryMarkers(defaultMemoryMarkers, cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.DedupBackend)
	}
}

// DatabaseMarkers keeps markers in the processed_events table.
type DatabaseMarkers struct {
	db *database.DB
}

// NewDatabaseMarkers wraps db.
func NewDatabaseMarkers(db *database.DB) *DatabaseMarkers {
	return &DatabaseMarkers{db: db}
}

func (m *DatabaseMarkers) MarkProcessed(ctx context.Context, key string, tenantID int64, kind string) (bool, error) {
	return m.db.MarkProcessed(ctx, key, tenantID, kind)
}

func (m *DatabaseMarkers) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.db.PruneProcessedEvents(ctx, cutoff)
}

// Close is a no-op; the database outlives the marker store.
func (m *DatabaseMarkers) Close() error { return nil }

const (
	markerKeyPrefix      = "marker:"
	maxBadgerTxnAttempts = 5
)

// BadgerMarkers keeps markers in BadgerDB with a TTL equal to the
// retention, so expiry needs no scan.
type BadgerMarkers struct {
	db        *badger.DB
	retention time.Duration
}

// OpenBadgerMarkers opens a store at path. An empty path opens an
// in-memory store.
func OpenBadgerMarkers(path string, retention time.Duration) (*BadgerMarkers, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", path).Dur("retention", retention).Msg("Badger marker store opened")
	return &BadgerMarkers{db: db, retention: retention}, nil
}

func (m *BadgerMarkers) MarkProcessed(ctx context.Context, key string, tenantID int64, kind string) (bool, error) {
	k := []byte(markerKeyPrefix + key)
	value := []byte(strconv.FormatInt(tenantID, 10) + ":" + kind)

	for attempt := 0; attempt < maxBadgerTxnAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var first bool
		err := m.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(k)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			e := badger.NewEntry(k, value)
			if m.retention > 0 {
				e = e.WithTTL(m.retention)
			}
			first = true
			return txn.SetEntry(e)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("mark processed: %w", err)
		}
		return first, nil
	}
	return false, fmt.Errorf("mark processed: %w", badger.ErrConflict)
}

// Prune only reclaims value-log space; expiry is enforced by the TTL.
func (m *BadgerMarkers) Prune(_ context.Context, _ time.Time) (int64, error) {
	err := m.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return 0, fmt.Errorf("value log gc: %w", err)
	}
	return 0, nil
}

func (m *BadgerMarkers) Close() error {
	return m.db.Close()
}

const defaultMemoryMarkers = 100000

// MemoryMarkers keeps markers in a bounded LRU. Markers are lost on restart
// and the oldest are evicted past capacity.
type MemoryMarkers struct {
	lru *cache.LRU[struct{}]
}

// NewMemoryMarkers returns a store holding at most capacity markers for
// retention each.
func NewMemoryMarkers(capacity int, retention time.Duration) *MemoryMarkers {
	return &MemoryMarkers{lru: cache.New[struct{}](capacity, retention)}
}

func (m *MemoryMarkers) MarkProcessed(_ context.Context, key string, _ int64, _ string) (bool, error) {
	return !m.lru.SeenOrAdd(key, struct{}{}), nil
}

func (m *MemoryMarkers) Prune(_ context.Context, _ time.Time) (int64, error) {
	return int64(m.lru.CleanupExpired()), nil
}

func (m *MemoryMarkers) Close() error { return nil }
