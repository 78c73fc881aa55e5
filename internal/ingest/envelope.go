// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/models"
)

// ErrMalformed marks events that cannot be routed: invalid JSON, no event
// kind, no tenant, or a known kind whose data lacks required fields.
var ErrMalformed = errors.New("malformed event")

// Envelope is a push event in canonical form.
type Envelope struct {
	Kind     string
	TenantID int64
	// EventID is the sender's own event identifier, when it provides one.
	EventID string
	// Timestamp is the envelope-level event time, used for the dedup key
	// when the entity carries no timestamp of its own.
	Timestamp string
	Data      json.RawMessage
}

// wireEnvelope accepts both the canonical shape
//
//	{"event_kind": "...", "tenant_id": 1, "data": {...}, "event_id": "..."}
//
// and the remote API's native shape
//
//	{"event": "reservation.updated", "accountId": 1, "payload": {"data": {...}}}
type wireEnvelope struct {
	EventKind string          `json:"event_kind"`
	Event     string          `json:"event"`
	EventType string          `json:"eventType"`
	TenantID  json.RawMessage `json:"tenant_id"`
	AccountID json.RawMessage `json:"accountId"`
	EventID   json.RawMessage `json:"event_id"`
	Timestamp json.RawMessage `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Payload   *struct {
		Data json.RawMessage `json:"data"`
	} `json:"payload"`
}

// ParseEnvelope normalizes body into an Envelope. On ErrMalformed the
// returned envelope still carries whatever was recognized, so callers can
// log it and authenticate against the tenant it names.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return &Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := &Envelope{Kind: firstNonEmpty(w.EventKind, w.Event, w.EventType)}
	env.TenantID = parseTenantID(w.TenantID)
	if env.TenantID == 0 {
		env.TenantID = parseTenantID(w.AccountID)
	}
	env.EventID, _ = models.ScalarString(w.EventID)
	env.Timestamp, _ = models.ScalarString(w.Timestamp)

	env.Data = w.Data
	if isNull(env.Data) && w.Payload != nil {
		env.Data = w.Payload.Data
	}
	if isNull(env.Data) {
		env.Data = nil
	}

	switch {
	case env.Kind == "":
		return env, fmt.Errorf("%w: missing event kind", ErrMalformed)
	case env.TenantID == 0:
		return env, fmt.Errorf("%w: missing tenant id", ErrMalformed)
	}
	return env, nil
}

// DataField returns a scalar field of the entity payload.
func (e *Envelope) DataField(field string) (string, bool) {
	if e.Data == nil {
		return "", false
	}
	return models.FieldString(e.Data, field)
}

func parseTenantID(raw json.RawMessage) int64 {
	s, ok := models.ScalarString(raw)
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
