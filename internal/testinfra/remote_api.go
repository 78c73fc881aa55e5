// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package testinfra

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/models"
)

// RemoteCapture is one request received by the fake remote API.
type RemoteCapture struct {
	Method string
	// Path is relative to the API root, e.g. "listings".
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Fault is a scripted response served instead of the real one.
type Fault struct {
	Status int
	// Delay is applied before responding; use it to provoke client timeouts.
	Delay time.Duration
}

// RemoteAPI is an in-process fake of the property-management API. It serves
// paginated collections per tenant, mints tokens, accepts webhook
// registrations and lets tests script failures per path.
type RemoteAPI struct {
	Server *httptest.Server

	mu          sync.Mutex
	captures    []RemoteCapture
	collections map[int64]map[string][]json.RawMessage
	secrets     map[int64]string
	tokens      map[string]int64
	faults      map[string][]Fault
	mints       int
	maxLimit    int
	nextHook    int64
	webhooks    map[int64]int64 // webhook id -> tenant
}

// NewRemoteAPI starts a fake API server closed on test cleanup.
func NewRemoteAPI(t testing.TB) *RemoteAPI {
	t.Helper()

	api := &RemoteAPI{
		collections: make(map[int64]map[string][]json.RawMessage),
		secrets:     make(map[int64]string),
		tokens:      make(map[string]int64),
		faults:      make(map[string][]Fault),
		nextHook:    9000,
		webhooks:    make(map[int64]int64),
	}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/accessTokens", api.handleMint)
		r.Post("/webhooks/unifiedWebhooks", api.handleRegisterWebhook)
		r.Delete("/webhooks/unifiedWebhooks/{id}", api.handleDeleteWebhook)
		r.Get("/*", api.handleCollection)
	})
	api.Server = httptest.NewServer(api.capture(r))
	t.Cleanup(api.Server.Close)
	return api
}

// BaseURL is the API root with a trailing slash.
func (a *RemoteAPI) BaseURL() string {
	return a.Server.URL + "/v1/"
}

// AddTenant registers a tenant's client secret.
func (a *RemoteAPI) AddTenant(tenantID int64, secret string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.secrets[tenantID] = secret
}

// IssueToken returns a valid bearer token for tenantID without a mint call.
func (a *RemoteAPI) IssueToken(tenantID int64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issueLocked(tenantID)
}

func (a *RemoteAPI) issueLocked(tenantID int64) string {
	token := fmt.Sprintf("token-%d-%d", tenantID, len(a.tokens)+1)
	a.tokens[token] = tenantID
	return token
}

// ExpireTokens invalidates every issued token, so the next request for any
// tenant gets a 403.
func (a *RemoteAPI) ExpireTokens() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.tokens {
		a.tokens[k] = 0
	}
}

// SetCollection replaces the records served at path for tenantID.
func (a *RemoteAPI) SetCollection(tenantID int64, path string, records []json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.collections[tenantID] == nil {
		a.collections[tenantID] = make(map[string][]json.RawMessage)
	}
	a.collections[tenantID][path] = records
}

// SetMaxLimit caps the page size the server honors. Zero means no cap.
func (a *RemoteAPI) SetMaxLimit(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxLimit = n
}

// FailNext queues faults served, in order, to the next requests for path.
func (a *RemoteAPI) FailNext(path string, faults ...Fault) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults[path] = append(a.faults[path], faults...)
}

// FailStatus queues n responses with status for path.
func (a *RemoteAPI) FailStatus(path string, status, n int) {
	faults := make([]Fault, n)
	for i := range faults {
		faults[i] = Fault{Status: status}
	}
	a.FailNext(path, faults...)
}

// FailAlways makes every request for path return status.
func (a *RemoteAPI) FailAlways(path string, status int) {
	a.FailStatus(path, status, 1<<20)
}

// Captures returns a copy of all captured requests.
func (a *RemoteAPI) Captures() []RemoteCapture {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RemoteCapture, len(a.captures))
	copy(out, a.captures)
	return out
}

// CapturesFor returns captured requests for one method and path.
func (a *RemoteAPI) CapturesFor(method, path string) []RemoteCapture {
	var out []RemoteCapture
	for _, c := range a.Captures() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// MintCount is the number of successful token mints.
func (a *RemoteAPI) MintCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mints
}

// WebhookTenant returns the tenant owning a registered webhook.
func (a *RemoteAPI) WebhookTenant(id int64) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tenant, ok := a.webhooks[id]
	return tenant, ok
}

func (a *RemoteAPI) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		path := strings.TrimPrefix(r.URL.Path, "/v1/")
		a.mu.Lock()
		a.captures = append(a.captures, RemoteCapture{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		var fault *Fault
		if queue := a.faults[path]; len(queue) > 0 {
			f := queue[0]
			fault = &f
			a.faults[path] = queue[1:]
		}
		a.mu.Unlock()

		if fault != nil {
			if fault.Delay > 0 {
				select {
				case <-time.After(fault.Delay):
				case <-r.Context().Done():
					return
				}
			}
			if fault.Status != 0 {
				writeJSON(w, fault.Status, map[string]string{"status": "fail", "message": http.StatusText(fault.Status)})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tenantFor resolves the bearer token, or 0 when it is unknown or expired.
func (a *RemoteAPI) tenantFor(r *http.Request) int64 {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens[token]
}

func (a *RemoteAPI) handleMint(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "fail"})
		return
	}
	tenantID, err := strconv.ParseInt(r.PostForm.Get("client_id"), 10, 64)
	if err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "fail"})
		return
	}

	a.mu.Lock()
	secret, ok := a.secrets[tenantID]
	if !ok || secret != r.PostForm.Get("client_secret") {
		a.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "fail", "message": "invalid client"})
		return
	}
	token := a.issueLocked(tenantID)
	a.mints++
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_type":   "Bearer",
		"expires_in":   15552000,
		"access_token": token,
	})
}

func (a *RemoteAPI) handleCollection(w http.ResponseWriter, r *http.Request) {
	tenantID := a.tenantFor(r)
	if tenantID == 0 {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "fail", "message": "token expired"})
		return
	}
	path := chi.URLParam(r, "*")

	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	a.mu.Lock()
	if a.maxLimit > 0 && limit > a.maxLimit {
		limit = a.maxLimit
	}
	all := a.collections[tenantID][path]
	a.mu.Unlock()

	if rid := q.Get("reservationId"); rid != "" {
		filtered := make([]json.RawMessage, 0, len(all))
		for _, rec := range all {
			if v, ok := models.FieldString(rec, "reservationId"); ok && v == rid {
				filtered = append(filtered, rec)
			}
		}
		all = filtered
	}

	page := []json.RawMessage{}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"result": page,
		"count":  len(all),
		"limit":  limit,
		"offset": offset,
	})
}

func (a *RemoteAPI) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := a.tenantFor(r)
	if tenantID == 0 {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "fail"})
		return
	}
	a.mu.Lock()
	a.nextHook++
	id := a.nextHook
	a.webhooks[id] = tenantID
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"result": map[string]interface{}{"id": id, "isEnabled": 1},
	})
}

func (a *RemoteAPI) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := a.tenantFor(r)
	if tenantID == 0 {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "fail"})
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	a.mu.Lock()
	owner, ok := a.webhooks[id]
	if ok && owner == tenantID {
		delete(a.webhooks, id)
	}
	a.mu.Unlock()
	if err != nil || !ok || owner != tenantID {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "fail"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Records builds n records with numeric ids start..start+n-1. extra adds
// fields to every record.
func Records(start, n int, extra map[string]interface{}) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		rec := map[string]interface{}{"id": start + i}
		for k, v := range extra {
			rec[k] = v
		}
		b, _ := json.Marshal(rec)
		out = append(out, b)
	}
	return out
}
