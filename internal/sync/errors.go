// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNoCredentials is returned when a tenant has no client secret.
	ErrNoCredentials = errors.New("tenant has no client credentials")

	// ErrImplausibleCount is returned when a collection reports a negative
	// total or more pages than the client will fetch.
	ErrImplausibleCount = errors.New("remote reported an implausible record count")

	// ErrSyncInProgress is returned by SyncTenant when a run for the same
	// tenant is already in flight.
	ErrSyncInProgress = errors.New("sync already in progress for tenant")
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Transient reports whether the status is retried (429 or 5xx).
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// maxErrorBodySize bounds how much of an error response is kept.
const maxErrorBodySize = 4 * 1024

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}
