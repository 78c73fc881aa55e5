// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
)

const (
	defaultRetention     = 7 * 24 * time.Hour
	defaultPruneInterval = time.Hour
)

// MarkerPruner deletes processed-event markers older than cutoff.
// ingest.MarkerStore implements it.
type MarkerPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrunerService enforces marker retention on a fixed interval.
type PrunerService struct {
	store     MarkerPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	name      string
	log       zerolog.Logger
}

// NewPrunerService creates a pruner. Non-positive durations take the
// defaults of 7 days retention and an hourly run.
func NewPrunerService(store MarkerPruner, retention, interval time.Duration) *PrunerService {
	if retention <= 0 {
		retention = defaultRetention
	}
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &PrunerService{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		name:      "marker-pruner",
		log:       logging.WithComponent("marker-pruner"),
	}
}

// Serve implements suture.Service. It prunes once at start and then every
// interval. A failed pass is logged and retried on the next tick.
func (p *PrunerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("Marker pruning failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PruneOnce deletes markers older than the retention window.
func (p *PrunerService) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ProcessedEventsPruned.Add(float64(n))
		p.log.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("Pruned processed-event markers")
	}
	return n, nil
}

// String implements fmt.Stringer for suture's logs.
func (p *PrunerService) String() string {
	return p.name
}
