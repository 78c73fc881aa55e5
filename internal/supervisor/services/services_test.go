// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
)

// Compile-time checks.
var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*SyncService)(nil)
	_ suture.Service = (*PrunerService)(nil)
)

// mockHTTPServer is a test double for HTTPServer.
type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	shutdownCount atomic.Int32
	started       chan struct{}
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	m.stopOnce.Do(func() { close(m.stopCh) })
	return m.shutdownErr
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if got := server.shutdownCount.Load(); got != 1 {
		t.Errorf("Shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address in use")
	svc := NewHTTPServerService(server, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve() = %v, want wrapped listen error", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout = %v", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

type fakeRunner struct {
	runErr error
	block  bool
	waits  atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.runErr
}

func (f *fakeRunner) Wait() { f.waits.Add(1) }

func TestSyncService(t *testing.T) {
	t.Run("waits for triggered runs on shutdown", func(t *testing.T) {
		runner := &fakeRunner{block: true}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := NewSyncService(runner).Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if runner.waits.Load() != 1 {
			t.Errorf("Wait calls = %d, want 1", runner.waits.Load())
		}
	})

	t.Run("early exit is an error", func(t *testing.T) {
		runner := &fakeRunner{runErr: errors.New("already running")}
		err := NewSyncService(runner).Serve(context.Background())
		if err == nil || !errors.Is(err, runner.runErr) {
			t.Errorf("Serve() = %v", err)
		}
		if runner.waits.Load() != 0 {
			t.Error("Wait called on early exit")
		}
	})

	t.Run("nil return is still an error", func(t *testing.T) {
		if err := NewSyncService(&fakeRunner{}).Serve(context.Background()); err == nil {
			t.Error("expected error when the scheduler returns without cancellation")
		}
	})
}

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPrunerService_PruneOnce(t *testing.T) {
	store := &fakePruner{n: 3}
	svc := NewPrunerService(store, 48*time.Hour, time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	before := testutil.ToFloat64(metrics.ProcessedEventsPruned)
	n, err := svc.PruneOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("PruneOnce() = %d, %v", n, err)
	}
	if want := now.Add(-48 * time.Hour); !store.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoffs[0], want)
	}
	if got := testutil.ToFloat64(metrics.ProcessedEventsPruned) - before; got != 3 {
		t.Errorf("pruned counter delta = %v, want 3", got)
	}

	store.err = errors.New("disk full")
	if _, err := svc.PruneOnce(context.Background()); err == nil {
		t.Error("expected error from store")
	}
}

func TestPrunerService_LogsWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(logging.NewTestLogger(&buf))
	defer logging.Init(logging.DefaultConfig())

	svc := NewPrunerService(&fakePruner{n: 2}, time.Hour, time.Minute)
	if _, err := svc.PruneOnce(context.Background()); err != nil {
		t.Fatalf("PruneOnce: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"component":"marker-pruner"`) {
		t.Errorf("component field missing: %s", out)
	}
	if !strings.Contains(out, `"pruned":2`) {
		t.Errorf("pruned field missing: %s", out)
	}
}

func TestPrunerService_Serve(t *testing.T) {
	store := &fakePruner{}
	svc := NewPrunerService(store, 0, 10*time.Millisecond)
	if svc.retention != 7*24*time.Hour {
		t.Errorf("default retention = %v", svc.retention)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v", err)
	}
	if store.calls() < 2 {
		t.Errorf("prune passes = %d, want at least 2", store.calls())
	}
}
