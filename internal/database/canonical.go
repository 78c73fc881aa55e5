// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package database

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// CanonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Numbers keep their literal text. Two structurally equal
// documents yield identical bytes, so text comparison in the store matches
// structural comparison.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON payload: trailing data")
	}
	return json.Marshal(v)
}
