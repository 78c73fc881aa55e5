// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/logging"
)

// Manager schedules full syncs and runs manual per-tenant triggers in the
// background.
type Manager struct {
	orch *Orchestrator
	cfg  config.SyncConfig

	mu          sync.RWMutex
	lastSummary *SyncSummary
	running     bool

	// syncMu prevents overlapping scheduled passes.
	syncMu sync.Mutex
	wg     sync.WaitGroup
}

// NewManager creates a manager driving orch.
func NewManager(orch *Orchestrator, cfg config.SyncConfig) *Manager {
	return &Manager{orch: orch, cfg: cfg}
}

// DefaultDryRun is the configured dry-run default for triggered runs.
func (m *Manager) DefaultDryRun() bool {
	return m.cfg.DryRun
}

// Run performs the optional startup pass, then syncs all tenants every
// Interval until ctx is canceled. It blocks, so it can be supervised.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("sync manager is already running")
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	logging.Info().Dur("interval", m.cfg.Interval).Bool("initial_sync", m.cfg.InitialSync).
		Msg("Starting sync manager")

	if m.cfg.InitialSync {
		m.syncAll(ctx)
	}

	if m.cfg.Interval <= 0 {
		logging.Info().Msg("Scheduled sync disabled (interval is zero)")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync manager stopped")
			return ctx.Err()
		case <-ticker.C:
			m.syncAll(ctx)
		}
	}
}

func (m *Manager) syncAll(ctx context.Context) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	summary, err := m.orch.SyncAllTenants(ctx, SyncOptions{DryRun: m.cfg.DryRun})
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled sync failed")
		return
	}

	m.mu.Lock()
	m.lastSummary = summary
	m.mu.Unlock()
}

// LastSummary returns the most recent scheduled pass, or nil.
func (m *Manager) LastSummary() *SyncSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSummary
}

// TriggerTenant starts a background sync for one tenant. It returns false
// when a run for that tenant is already in flight.
func (m *Manager) TriggerTenant(tenantID int64, dryRun bool) bool {
	if m.orch.InFlight(tenantID) {
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Int64("tenant_id", tenantID).Interface("panic", r).Msg("Triggered sync panicked")
			}
		}()
		// Triggered runs outlive the request that started them.
		report, err := m.orch.SyncTenant(context.Background(), tenantID, SyncOptions{DryRun: dryRun})
		switch {
		case errors.Is(err, ErrSyncInProgress):
			logging.Info().Int64("tenant_id", tenantID).Msg("Triggered sync skipped, run already in flight")
		case err != nil:
			logging.Error().Err(err).Int64("tenant_id", tenantID).Msg("Triggered sync failed")
		default:
			logging.Info().Int64("tenant_id", tenantID).Str("outcome", report.Outcome()).
				Msg("Triggered sync finished")
		}
	}()
	return true
}

// Wait blocks until all triggered runs have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
