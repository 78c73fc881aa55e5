// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/testinfra"
)

// testDelay is RequestDelay for testRemoteConfig.
const testDelay = time.Millisecond

func testRemoteConfig(baseURL string) config.RemoteConfig {
	return config.RemoteConfig{
		BaseURL:            baseURL,
		Timeout:            2 * time.Second,
		MaxRetries:         2,
		RequestsPerWindow:  1000,
		Window:             time.Second,
		PageSize:           100,
		MaxConcurrentPages: 4,
	}
}

// sleepRecorder replaces Client.sleep and records requested waits.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// memCredentials is an in-memory CredentialStore.
type memCredentials struct {
	mu      sync.Mutex
	secrets map[int64]string
	tokens  map[int64]string
	saves   int
}

func newMemCredentials() *memCredentials {
	return &memCredentials{secrets: make(map[int64]string), tokens: make(map[int64]string)}
}

func (m *memCredentials) ClientSecret(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[id], nil
}

func (m *memCredentials) AccessToken(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id], nil
}

func (m *memCredentials) SaveAccessToken(_ context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = token
	m.saves++
	return nil
}

func (m *memCredentials) token(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id]
}

// newTestClient wires a client to the fake API with an in-memory credential
// store and a recording sleeper.
func newTestClient(t *testing.T, api *testinfra.RemoteAPI, creds CredentialStore) (*Client, *sleepRecorder) {
	t.Helper()
	cfg := testRemoteConfig(api.BaseURL())
	var tokens TokenSource
	if creds != nil {
		tokens = NewCredentialManager(creds, NewHTTPTokenMinter(cfg))
	}
	c := NewClient(cfg, tokens)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
