// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package models

import (
	"time"
)

// APIResponse is the envelope returned by admin endpoints.
//
// Status is "success" or "error"; on error, Error is populated and Data is
// nil.
//
//	{
//	  "status": "success",
//	  "data": {"account_id": 59808, "is_active": true},
//	  "metadata": {"timestamp": "2026-01-02T15:04:05Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine-readable error body.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WebhookAck is the body returned to the remote sender of push events.
type WebhookAck struct {
	Status string `json:"status"`
}
