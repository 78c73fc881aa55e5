// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package models

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// EntityKind names one synchronized collection.
type EntityKind string

const (
	KindListing EntityKind = "listings"
	KindBooking EntityKind = "bookings"
	KindThread  EntityKind = "message_threads"
)

// EntitySpec describes how one entity kind is fetched and stored.
type EntitySpec struct {
	Kind EntityKind

	// Table is the relational table holding the rows.
	Table string

	// Endpoint is the remote collection path relative to the API base URL.
	Endpoint string

	// IDField is the payload field carrying the remote identifier.
	IDField string

	// ParentField is the payload field carrying the parent identifier, or ""
	// for top-level kinds.
	ParentField string
}

var (
	ListingSpec = EntitySpec{Kind: KindListing, Table: "listings", Endpoint: "listings", IDField: "id"}
	BookingSpec = EntitySpec{Kind: KindBooking, Table: "bookings", Endpoint: "reservations", IDField: "id", ParentField: "listingMapId"}
	ThreadSpec  = EntitySpec{Kind: KindThread, Table: "message_threads", Endpoint: "conversations", IDField: "id", ParentField: "reservationId"}
)

// SyncOrder is the fixed order in which a tenant's kinds are pulled. Threads
// are fetched per booking, so bookings must come before them.
var SyncOrder = []EntitySpec{ListingSpec, BookingSpec, ThreadSpec}

// SpecFor returns the spec for kind.
func SpecFor(kind EntityKind) (EntitySpec, bool) {
	for _, s := range SyncOrder {
		if s.Kind == kind {
			return s, true
		}
	}
	return EntitySpec{}, false
}

// Record is one stored entity row.
type Record struct {
	ID        string          `json:"id"`
	TenantID  int64           `json:"tenant_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ErrMissingID is returned by RecordFromPayload when the payload has no
// usable identifier.
var ErrMissingID = errors.New("record has no identifier")

// RecordFromPayload builds a Record from a verbatim remote payload. Numeric
// identifiers are stored in their decimal string form.
func RecordFromPayload(spec EntitySpec, tenantID int64, payload json.RawMessage) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Record{}, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if fields == nil {
		return Record{}, ErrMissingID
	}

	id, ok := ScalarString(fields[spec.IDField])
	if !ok || id == "" {
		return Record{}, ErrMissingID
	}

	rec := Record{ID: id, TenantID: tenantID, Payload: payload}
	if spec.ParentField != "" {
		if parent, ok := ScalarString(fields[spec.ParentField]); ok {
			rec.ParentID = parent
		}
	}
	return rec, nil
}

// FieldString returns a top-level scalar field of payload as a string.
func FieldString(payload json.RawMessage, field string) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", false
	}
	return ScalarString(fields[field])
}

// ScalarString renders a JSON string or number as a string. Anything else
// (null, object, array, bool, absent) is reported as not ok.
func ScalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n := json.Number(raw)
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if _, err := n.Float64(); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}
