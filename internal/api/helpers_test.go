// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/ingest"
	"github.com/tomtom215/staysync/internal/models"
	syncpkg "github.com/tomtom215/staysync/internal/sync"
	"github.com/tomtom215/staysync/internal/testinfra"
)

const testJWTSecret = "test-secret-with-at-least-32-characters"

type apiFixture struct {
	cfg     *config.Config
	db      *database.DB
	remote  *testinfra.RemoteAPI
	manager *syncpkg.Manager
	server  http.Handler
	token   string
}

// newAPIFixture wires the full router to an in-memory store and a fake
// remote API. mutate may adjust the configuration before wiring.
func newAPIFixture(t *testing.T, mutate func(*config.Config)) *apiFixture {
	t.Helper()

	db := testinfra.OpenTestDB(t)
	remote := testinfra.NewRemoteAPI(t)

	cfg := &config.Config{
		Remote: config.RemoteConfig{
			BaseURL:            remote.BaseURL(),
			Timeout:            2 * time.Second,
			MaxRetries:         2,
			RequestsPerWindow:  1000,
			Window:             time.Second,
			PageSize:           100,
			MaxConcurrentPages: 4,
		},
		Sync: config.SyncConfig{Interval: time.Hour},
		Webhook: config.WebhookConfig{
			Username:         "global",
			Password:         "global-pass",
			BaseURL:          "https://sync.example.com",
			RegisterOnCreate: true,
			Retention:        time.Hour,
		},
		Security: config.SecurityConfig{
			AuthMode:          "jwt",
			JWTSecret:         testJWTSecret,
			RateLimitDisabled: true,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	client := syncpkg.NewClient(cfg.Remote, syncpkg.NewCredentialManager(db, syncpkg.NewHTTPTokenMinter(cfg.Remote)))
	orch := syncpkg.NewOrchestrator(client, db, syncpkg.DatabaseWriters(db, 0), 4)
	manager := syncpkg.NewManager(orch, cfg.Sync)
	// Registered after the store so triggered runs finish before it closes.
	t.Cleanup(manager.Wait)

	global, err := auth.NewBasicAuthManager(cfg.Webhook.Username, cfg.Webhook.Password)
	if err != nil {
		t.Fatalf("NewBasicAuthManager: %v", err)
	}
	tenants := ingest.NewTenantCache(db)
	ingestor := ingest.NewIngestor(
		ingest.NewAuthenticator(tenants, global),
		ingest.NewMemoryMarkers(100, time.Hour),
		database.NewWriter(db, models.BookingSpec, 0, false),
		database.NewWriter(db, models.ThreadSpec, 0, false),
	)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	token, err := jwtManager.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	handler := NewHandler(db, cfg, manager, client, ingestor, tenants)
	router := NewRouter(handler,
		NewChiMiddleware(NewChiMiddlewareConfig(cfg.Security)),
		auth.NewMiddleware(jwtManager, cfg.Security.AuthMode))

	return &apiFixture{
		cfg:     cfg,
		db:      db,
		remote:  remote,
		manager: manager,
		server:  router.SetupChi(),
		token:   token,
	}
}

// admin sends an authenticated account API request.
func (f *apiFixture) admin(method, path, body string) *httptest.ResponseRecorder {
	return f.send(method, path, body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+f.token)
	})
}

// webhook posts a push event with Basic credentials; empty user sends none.
func (f *apiFixture) webhook(user, pass, body string) *httptest.ResponseRecorder {
	return f.send(http.MethodPost, "/webhooks", body, func(r *http.Request) {
		if user != "" {
			r.SetBasicAuth(user, pass)
		}
	})
}

func (f *apiFixture) send(method, path, body string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// apiEnvelope mirrors models.APIResponse with raw data.
type apiEnvelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) *apiEnvelope {
	t.Helper()
	var env apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return &env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec, nil)
	if env.Error == nil {
		t.Fatalf("response has no error: %s", rec.Body.String())
	}
	return env.Error.Code
}

// stubSyncer records triggers without running anything.
type stubSyncer struct {
	busy     bool
	dryRun   bool
	triggers []int64
}

func (s *stubSyncer) TriggerTenant(tenantID int64, _ bool) bool {
	if s.busy {
		return false
	}
	s.triggers = append(s.triggers, tenantID)
	return true
}

func (s *stubSyncer) DefaultDryRun() bool { return s.dryRun }
