// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/staysync/internal/testinfra"
)

// countingMinter returns token-1, token-2, ... and counts calls.
type countingMinter struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (m *countingMinter) Mint(_ context.Context, _ int64, _ string) (string, error) {
	n := m.calls.Add(1)
	time.Sleep(m.delay)
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("token-%d", n), nil
}

func TestCredentialManager_TokenMintsOnceAndPersists(t *testing.T) {
	store := newMemCredentials()
	store.secrets[500] = "secret"
	minter := &countingMinter{}
	m := NewCredentialManager(store, minter)

	tok, err := m.Token(context.Background(), 500)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "token-1" || store.token(500) != "token-1" {
		t.Errorf("token = %q stored = %q, want token-1", tok, store.token(500))
	}

	tok, err = m.Token(context.Background(), 500)
	if err != nil || tok != "token-1" {
		t.Errorf("second Token = %q, %v; want stored token-1", tok, err)
	}
	if minter.calls.Load() != 1 {
		t.Errorf("mints = %d, want 1", minter.calls.Load())
	}
}

func TestCredentialManager_NoSecret(t *testing.T) {
	m := NewCredentialManager(newMemCredentials(), &countingMinter{})

	_, err := m.Token(context.Background(), 77)
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestCredentialManager_ConcurrentRefreshMintsOnce(t *testing.T) {
	store := newMemCredentials()
	store.secrets[500] = "secret"
	store.tokens[500] = "expired"
	minter := &countingMinter{delay: 20 * time.Millisecond}
	m := NewCredentialManager(store, minter)

	const workers = 8
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Refresh(context.Background(), 500, "expired")
		}(i)
	}
	wg.Wait()

	if minter.calls.Load() != 1 {
		t.Errorf("mints = %d, want 1", minter.calls.Load())
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d: %v", i, errs[i])
		}
		if tokens[i] != "token-1" {
			t.Errorf("worker %d token = %q, want token-1", i, tokens[i])
		}
	}
}

func TestCredentialManager_MintFailureKeepsStoredToken(t *testing.T) {
	store := newMemCredentials()
	store.secrets[500] = "secret"
	store.tokens[500] = "old"
	m := NewCredentialManager(store, &countingMinter{err: errors.New("remote down")})

	if _, err := m.Refresh(context.Background(), 500, "old"); err == nil {
		t.Fatal("expected mint error")
	}
	if store.token(500) != "old" {
		t.Errorf("stored token = %q, want old", store.token(500))
	}
}

func TestHTTPTokenMinter_ClientCredentialsGrant(t *testing.T) {
	api := testinfra.NewRemoteAPI(t)
	api.AddTenant(500, "s3cret")
	minter := NewHTTPTokenMinter(testRemoteConfig(api.BaseURL()))

	tok, err := minter.Mint(context.Background(), 500, "s3cret")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if tok == "" {
		t.Fatal("empty token")
	}

	caps := api.CapturesFor(http.MethodPost, "accessTokens")
	if len(caps) != 1 {
		t.Fatalf("token requests = %d, want 1", len(caps))
	}
	c := caps[0]
	if ct := c.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := c.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	body := string(c.Body)
	for _, want := range []string{"grant_type=client_credentials", "client_id=500", "client_secret=s3cret", "scope=general"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}

	_, err = minter.Mint(context.Background(), 500, "wrong")
	if StatusCode(err) != http.StatusForbidden {
		t.Errorf("wrong secret err = %v, want 403", err)
	}
}

