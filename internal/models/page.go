// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package models

import "github.com/goccy/go-json"

// Page is one page of a remote collection:
//
//	{"status":"success","result":[...],"count":237,"limit":100,"offset":200}
//
// Count is the total number of records across all pages.
type Page struct {
	Status string            `json:"status"`
	Result []json.RawMessage `json:"result"`
	Count  int               `json:"count"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// TotalPages returns ceil(Count/limit), never less than one.
func (p *Page) TotalPages(limit int) int {
	if limit <= 0 || p.Count <= limit {
		return 1
	}
	return (p.Count + limit - 1) / limit
}
