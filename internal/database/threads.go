// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
)

// ThreadMerge describes one pushed message to fold into a stored thread.
type ThreadMerge struct {
	TenantID int64
	ThreadID string
	// BookingID becomes parent_id when the thread does not exist yet.
	BookingID string
	// Conversation seeds the thread's conversation object when the thread
	// does not exist yet. Nil stores {"id": ThreadID}.
	Conversation json.RawMessage
	Message      json.RawMessage
}

// MergeMessage reads the stored thread, inserts or replaces the message by
// id, re-sorts and writes it back, all in one transaction. It reports
// whether the stored thread changed.
func (w *Writer) MergeMessage(ctx context.Context, m ThreadMerge) (bool, error) {
	if w.spec.Kind != models.KindThread {
		return false, fmt.Errorf("merge message: writer handles %s", w.spec.Kind)
	}
	if m.ThreadID == "" {
		return false, models.ErrMissingID
	}
	msg, err := CanonicalJSON(m.Message)
	if err != nil {
		return false, err
	}

	w.db.threadMu.Lock()
	defer w.db.threadMu.Unlock()

	var changed bool
	err = withConflictRetry(ctx, func() error {
		var err error
		changed, err = w.mergeMessage(ctx, m, msg)
		return err
	})
	return changed, err
}

func (w *Writer) mergeMessage(ctx context.Context, m ThreadMerge, msg json.RawMessage) (bool, error) {
	tx, err := w.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := requireTenant(ctx, tx, m.TenantID); err != nil {
		return false, err
	}

	var (
		payload models.ThreadPayload
		parent  = m.BookingID
	)
	existing, err := getRecord(ctx, tx, w.spec, m.ThreadID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		payload.Conversation = m.Conversation
		if payload.Conversation == nil {
			payload.Conversation, _ = json.Marshal(map[string]string{"id": m.ThreadID})
		}
	case err != nil:
		return false, err
	default:
		if existing.TenantID != m.TenantID {
			return false, fmt.Errorf("thread %s belongs to tenant %d", m.ThreadID, existing.TenantID)
		}
		if err := json.Unmarshal(existing.Payload, &payload); err != nil {
			return false, fmt.Errorf("decode stored thread %s: %w", m.ThreadID, err)
		}
		// The store may re-render JSON text; compare in canonical form.
		for i, stored := range payload.Messages {
			if canon, err := CanonicalJSON(stored); err == nil {
				payload.Messages[i] = canon
			}
		}
		if existing.ParentID != "" {
			parent = existing.ParentID
		}
	}

	if !payload.MergeMessage(msg) {
		return false, nil
	}
	if payload.Messages == nil {
		payload.Messages = []json.RawMessage{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	canon, err := CanonicalJSON(raw)
	if err != nil {
		return false, err
	}

	if w.dryRun {
		logging.Info().Int64("tenant_id", m.TenantID).Str("thread_id", m.ThreadID).
			Msg("Dry run: skipping thread merge")
		return true, nil
	}

	var parentArg interface{}
	if parent != "" {
		parentArg = parent
	}
	now := w.now()
	_, err = tx.ExecContext(ctx, w.db.dialect.upsertSQL(w.spec.Table, 1),
		m.ThreadID, m.TenantID, parentArg, string(canon), now, now)
	if err != nil {
		return false, fmt.Errorf("write thread %s: %w", m.ThreadID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	logging.Debug().Int64("tenant_id", m.TenantID).Str("thread_id", m.ThreadID).
		Int("messages", len(payload.Messages)).Msg("Thread message merged")
	return true, nil
}
