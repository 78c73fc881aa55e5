// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
	"github.com/tomtom215/staysync/internal/models"
)

// DefaultChunkSize bounds rows per INSERT statement. Six parameters per row
// keeps a full chunk well below the PostgreSQL parameter limit.
const DefaultChunkSize = 500

// UpsertResult summarizes one batch.
type UpsertResult struct {
	Received    int   // records handed to the writer
	Accepted    int   // records sent to the store after filtering
	Written     int64 // rows inserted or changed, as reported by the driver
	MissingID   int
	DuplicateID int
	Invalid     int
}

// Writer upserts one entity kind.
type Writer struct {
	db        *DB
	spec      models.EntitySpec
	chunkSize int
	dryRun    bool
	now       func() time.Time
}

// NewWriter returns a writer for spec. A chunkSize of zero selects
// DefaultChunkSize. In dry-run mode batches are filtered and logged but
// nothing is written.
func NewWriter(db *DB, spec models.EntitySpec, chunkSize int, dryRun bool) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		db:        db,
		spec:      spec,
		chunkSize: chunkSize,
		dryRun:    dryRun,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Spec returns the entity kind handled by w.
func (w *Writer) Spec() models.EntitySpec {
	return w.spec
}

// DryRun reports whether w skips writes.
func (w *Writer) DryRun() bool {
	return w.dryRun
}

// UpsertPayloads derives records from verbatim remote objects and upserts
// them. Objects without an identifier are skipped and logged.
func (w *Writer) UpsertPayloads(ctx context.Context, tenantID int64, payloads []json.RawMessage) (*UpsertResult, error) {
	res := &UpsertResult{Received: len(payloads)}
	recs := make([]models.Record, 0, len(payloads))
	for i, p := range payloads {
		rec, err := models.RecordFromPayload(w.spec, tenantID, p)
		switch {
		case errors.Is(err, models.ErrMissingID):
			res.MissingID++
			logging.Warn().Str("kind", string(w.spec.Kind)).Int64("tenant_id", tenantID).
				Int("index", i).Msg("Skipping record without id")
			continue
		case err != nil:
			res.Invalid++
			logging.Warn().Str("kind", string(w.spec.Kind)).Int64("tenant_id", tenantID).
				Int("index", i).Err(err).Msg("Skipping malformed record")
			continue
		}
		recs = append(recs, rec)
	}
	return w.upsert(ctx, tenantID, recs, res)
}

// UpsertRecords upserts records whose identifiers are already known.
func (w *Writer) UpsertRecords(ctx context.Context, tenantID int64, recs []models.Record) (*UpsertResult, error) {
	return w.upsert(ctx, tenantID, recs, &UpsertResult{Received: len(recs)})
}

func (w *Writer) upsert(ctx context.Context, tenantID int64, recs []models.Record, res *UpsertResult) (*UpsertResult, error) {
	start := time.Now()
	kind := string(w.spec.Kind)

	batch := make([]models.Record, 0, len(recs))
	position := make(map[string]int, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			res.MissingID++
			logging.Warn().Str("kind", kind).Int64("tenant_id", tenantID).Msg("Skipping record without id")
			continue
		}
		canon, err := CanonicalJSON(rec.Payload)
		if err != nil {
			res.Invalid++
			logging.Warn().Str("kind", kind).Str("id", rec.ID).Err(err).Msg("Skipping record with invalid payload")
			continue
		}
		rec.Payload = canon
		rec.TenantID = tenantID

		// Last occurrence wins; a statement may not touch one key twice.
		if idx, seen := position[rec.ID]; seen {
			res.DuplicateID++
			logging.Warn().Str("kind", kind).Str("id", rec.ID).Msg("Duplicate id in batch, keeping last occurrence")
			batch[idx] = rec
			continue
		}
		position[rec.ID] = len(batch)
		batch = append(batch, rec)
	}
	res.Accepted = len(batch)

	if w.dryRun {
		logging.Info().Str("kind", kind).Int64("tenant_id", tenantID).Int("records", len(batch)).
			Msg("Dry run: skipping upsert")
		metrics.RecordUpsert(kind, 0, res.MissingID, res.DuplicateID, time.Since(start))
		return res, nil
	}
	if len(batch) == 0 {
		metrics.RecordUpsert(kind, 0, res.MissingID, res.DuplicateID, time.Since(start))
		return res, nil
	}

	err := withConflictRetry(ctx, func() error {
		written, err := w.writeBatch(ctx, tenantID, batch)
		res.Written = written
		return err
	})
	if err != nil {
		return res, fmt.Errorf("upsert %s: %w", w.spec.Table, err)
	}

	metrics.RecordUpsert(kind, int(res.Written), res.MissingID, res.DuplicateID, time.Since(start))
	logging.Debug().Str("kind", kind).Int64("tenant_id", tenantID).Int("accepted", res.Accepted).
		Int64("written", res.Written).Dur("duration", time.Since(start)).Msg("Upsert complete")
	return res, nil
}

// writeBatch writes all chunks in one transaction.
func (w *Writer) writeBatch(ctx context.Context, tenantID int64, batch []models.Record) (int64, error) {
	tx, err := w.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := requireTenant(ctx, tx, tenantID); err != nil {
		return 0, err
	}

	now := w.now()
	var written int64
	for start := 0; start < len(batch); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		args := make([]interface{}, 0, len(chunk)*entityParamsPerRow)
		for _, rec := range chunk {
			var parent interface{}
			if rec.ParentID != "" {
				parent = rec.ParentID
			}
			args = append(args, rec.ID, rec.TenantID, parent, string(rec.Payload), now, now)
		}

		result, err := tx.ExecContext(ctx, w.db.dialect.upsertSQL(w.spec.Table, len(chunk)), args...)
		if err != nil {
			return 0, err
		}
		if n, err := result.RowsAffected(); err == nil {
			written += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}
