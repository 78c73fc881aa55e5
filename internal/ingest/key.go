// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package ingest

import (
	"strconv"
	"strings"
)

// entityTimeFields are consulted in order for the entity's change time.
var entityTimeFields = []string{"updatedOn", "insertedOn", "date"}

// DedupKey identifies a push event for the processed-event marker set.
//
// The sender's event id wins when present. Otherwise the key is
// tenant:entityId:kind:timestamp, with the timestamp taken from the entity
// (updatedOn, insertedOn, date) or the envelope. ok is false when neither
// form can be built; such events are handled without deduplication, since
// a partial composite key would collapse distinct updates of one entity.
func DedupKey(env *Envelope) (key string, ok bool) {
	if env.EventID != "" {
		return "event:" + env.EventID, true
	}

	entityID, found := env.DataField("id")
	if !found || entityID == "" {
		return "", false
	}

	ts := env.Timestamp
	for _, f := range entityTimeFields {
		if v, found := env.DataField(f); found && v != "" {
			ts = v
			break
		}
	}
	if ts == "" {
		return "", false
	}

	return strings.Join([]string{
		strconv.FormatInt(env.TenantID, 10),
		entityID,
		env.Kind,
		ts,
	}, ":"), true
}
