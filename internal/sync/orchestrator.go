// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
	"github.com/tomtom215/staysync/internal/models"
)

const (
	defaultThreadWorkers = 4
	maxConcurrentTenants = 4
)

// Fetcher retrieves every record of a remote collection.
type Fetcher interface {
	FetchAllPages(ctx context.Context, endpoint string, tenantID int64, params url.Values) ([]json.RawMessage, error)
}

// Store is the slice of the database the orchestrator needs.
type Store interface {
	ListActiveTenantIDs(ctx context.Context) ([]int64, error)
	ListRecordIDs(ctx context.Context, spec models.EntitySpec, tenantID int64) ([]string, error)
	MarkSynced(ctx context.Context, tenantID int64, at time.Time) error
	RecordSyncState(ctx context.Context, st models.SyncState) error
}

// RecordWriter upserts one entity kind.
type RecordWriter interface {
	UpsertPayloads(ctx context.Context, tenantID int64, payloads []json.RawMessage) (*database.UpsertResult, error)
	UpsertRecords(ctx context.Context, tenantID int64, recs []models.Record) (*database.UpsertResult, error)
}

// WriterFactory returns the writer for one kind.
type WriterFactory func(spec models.EntitySpec, dryRun bool) RecordWriter

// DatabaseWriters returns a factory of database writers using chunkSize.
func DatabaseWriters(db *database.DB, chunkSize int) WriterFactory {
	return func(spec models.EntitySpec, dryRun bool) RecordWriter {
		return database.NewWriter(db, spec, chunkSize, dryRun)
	}
}

// SyncOptions controls one tenant run.
type SyncOptions struct {
	// DryRun fetches and validates without writing anything.
	DryRun bool
}

// KindResult is the outcome of one entity kind within a tenant run.
type KindResult struct {
	Kind    models.EntityKind `json:"entity_kind"`
	Fetched int               `json:"fetched"`
	Written int64             `json:"written"`
	Skipped int               `json:"skipped"`

	// FailedBookings counts bookings whose threads could not be fetched.
	FailedBookings int `json:"failed_bookings,omitempty"`

	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SyncReport summarizes one tenant run.
type SyncReport struct {
	TenantID  int64         `json:"account_id"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Kinds     []KindResult  `json:"kinds"`
}

// Outcome is "complete" when every kind succeeded, "failed" when none did
// and "partial" otherwise.
func (r *SyncReport) Outcome() string {
	failed := 0
	degraded := false
	for _, k := range r.Kinds {
		if k.Err != nil {
			failed++
		} else if k.FailedBookings > 0 {
			degraded = true
		}
	}
	switch {
	case failed == 0 && !degraded:
		return "complete"
	case failed == len(r.Kinds):
		return "failed"
	default:
		return "partial"
	}
}

// Kind returns the result for kind, or nil.
func (r *SyncReport) Kind(kind models.EntityKind) *KindResult {
	for i := range r.Kinds {
		if r.Kinds[i].Kind == kind {
			return &r.Kinds[i]
		}
	}
	return nil
}

// SyncSummary summarizes a SyncAllTenants pass.
type SyncSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Reports   []*SyncReport `json:"reports"`

	// Skipped lists tenants that already had a run in flight.
	Skipped []int64 `json:"skipped,omitempty"`
}

// Orchestrator runs tenant syncs.
type Orchestrator struct {
	fetcher       Fetcher
	store         Store
	writers       WriterFactory
	threadWorkers int
	now           func() time.Time

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewOrchestrator creates an orchestrator. threadWorkers bounds concurrent
// per-booking thread fetches; zero selects 4.
func NewOrchestrator(fetcher Fetcher, store Store, writers WriterFactory, threadWorkers int) *Orchestrator {
	if threadWorkers <= 0 {
		threadWorkers = defaultThreadWorkers
	}
	return &Orchestrator{
		fetcher:       fetcher,
		store:         store,
		writers:       writers,
		threadWorkers: threadWorkers,
		now:           func() time.Time { return time.Now().UTC() },
		inFlight:      make(map[int64]struct{}),
	}
}

func (o *Orchestrator) acquire(tenantID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[tenantID]; busy {
		return false
	}
	o.inFlight[tenantID] = struct{}{}
	return true
}

func (o *Orchestrator) release(tenantID int64) {
	o.mu.Lock()
	delete(o.inFlight, tenantID)
	o.mu.Unlock()
}

// InFlight reports whether a run for tenantID is in progress.
func (o *Orchestrator) InFlight(tenantID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[tenantID]
	return busy
}

// SyncTenant pulls listings, bookings and threads for one tenant. A failing
// kind is logged and recorded in the report; later kinds still run. The
// returned error is non-nil only when the run could not start.
func (o *Orchestrator) SyncTenant(ctx context.Context, tenantID int64, opts SyncOptions) (report *SyncReport, err error) {
	if !o.acquire(tenantID) {
		return nil, ErrSyncInProgress
	}
	defer o.release(tenantID)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordTenantSync("panic")
			report, err = nil, fmt.Errorf("tenant %d sync panicked: %v", tenantID, r)
		}
	}()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	started := time.Now()
	report = &SyncReport{TenantID: tenantID, DryRun: opts.DryRun, StartedAt: o.now()}
	log.Info().Int64("tenant_id", tenantID).Bool("dry_run", opts.DryRun).Msg("Starting tenant sync")

	var fetchedBookings []string
	for _, spec := range models.SyncOrder {
		start := time.Now()
		var res KindResult
		switch spec.Kind {
		case models.KindThread:
			res = o.syncThreads(ctx, tenantID, fetchedBookings, opts)
		case models.KindBooking:
			var payloads []json.RawMessage
			res, payloads = o.syncFlat(ctx, spec, tenantID, opts)
			fetchedBookings = recordIDs(spec, tenantID, payloads)
		default:
			res, _ = o.syncFlat(ctx, spec, tenantID, opts)
		}
		res.Kind = spec.Kind
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			log.Error().Err(res.Err).Int64("tenant_id", tenantID).Str("kind", string(spec.Kind)).
				Msg("Entity sync failed")
		} else {
			log.Info().Int64("tenant_id", tenantID).Str("kind", string(spec.Kind)).
				Int("fetched", res.Fetched).Int64("written", res.Written).Int("skipped", res.Skipped).
				Dur("duration", res.Duration).Msg("Entity sync finished")
		}
		metrics.RecordPoll(tenantID, string(spec.Kind), res.Err, res.Duration)
		report.Kinds = append(report.Kinds, res)

		if !opts.DryRun {
			o.recordState(ctx, tenantID, res)
		}
	}

	report.Duration = time.Since(started)
	if !opts.DryRun {
		if err := o.store.MarkSynced(ctx, tenantID, o.now()); err != nil {
			log.Error().Err(err).Int64("tenant_id", tenantID).Msg("Failed to record last sync time")
		}
	}

	outcome := report.Outcome()
	metrics.RecordTenantSync(outcome)
	log.Info().Int64("tenant_id", tenantID).Str("outcome", outcome).
		Dur("duration", report.Duration).Msg("Tenant sync finished")
	return report, nil
}

func (o *Orchestrator) recordState(ctx context.Context, tenantID int64, res KindResult) {
	now := o.now()
	st := models.SyncState{
		TenantID:      tenantID,
		EntityKind:    res.Kind,
		LastAttemptAt: now,
		Records:       res.Fetched,
	}
	if res.Err != nil {
		st.LastError = res.Err.Error()
	} else {
		st.LastSuccessAt = &now
	}
	if err := o.store.RecordSyncState(ctx, st); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("tenant_id", tenantID).Str("kind", string(res.Kind)).
			Msg("Failed to record sync state")
	}
}

// syncFlat fetches a whole collection and upserts it. The fetched payloads
// are returned so bookings can seed the thread pass.
func (o *Orchestrator) syncFlat(ctx context.Context, spec models.EntitySpec, tenantID int64, opts SyncOptions) (KindResult, []json.RawMessage) {
	payloads, err := o.fetcher.FetchAllPages(ctx, spec.Endpoint, tenantID, nil)
	if err != nil {
		return KindResult{Err: fmt.Errorf("fetch %s: %w", spec.Endpoint, err)}, nil
	}

	res := KindResult{Fetched: len(payloads)}
	up, err := o.writers(spec, opts.DryRun).UpsertPayloads(ctx, tenantID, payloads)
	if err != nil {
		res.Err = fmt.Errorf("upsert %s: %w", spec.Kind, err)
		return res, payloads
	}
	res.Written = up.Written
	res.Skipped = up.MissingID + up.DuplicateID + up.Invalid
	return res, payloads
}

func recordIDs(spec models.EntitySpec, tenantID int64, payloads []json.RawMessage) []string {
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if rec, err := models.RecordFromPayload(spec, tenantID, p); err == nil {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

// syncThreads fetches conversations and their messages for every known
// booking. Bookings already stored are included so a failed bookings pull
// does not block threads.
func (o *Orchestrator) syncThreads(ctx context.Context, tenantID int64, fetched []string, opts SyncOptions) KindResult {
	stored, err := o.store.ListRecordIDs(ctx, models.BookingSpec, tenantID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("tenant_id", tenantID).
			Msg("Could not list stored bookings, using fetched set only")
	}
	bookings := unionSorted(fetched, stored)

	var (
		mu      sync.Mutex
		records []models.Record
		failed  int
	)

	var g errgroup.Group
	g.SetLimit(o.threadWorkers)
	for _, booking := range bookings {
		g.Go(func() error {
			recs, err := o.fetchBookingThreads(ctx, tenantID, booking)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logging.Ctx(ctx).Warn().Err(err).Int64("tenant_id", tenantID).Str("booking_id", booking).
					Msg("Skipping threads for booking")
				return nil
			}
			records = append(records, recs...)
			return nil
		})
	}
	_ = g.Wait()

	res := KindResult{Fetched: len(records), FailedBookings: failed}
	if failed > 0 && failed == len(bookings) {
		res.Err = fmt.Errorf("threads failed for all %d bookings", failed)
		return res
	}

	// Worker completion order is arbitrary.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	up, err := o.writers(models.ThreadSpec, opts.DryRun).UpsertRecords(ctx, tenantID, records)
	if err != nil {
		res.Err = fmt.Errorf("upsert threads: %w", err)
		return res
	}
	res.Written = up.Written
	res.Skipped = up.MissingID + up.DuplicateID + up.Invalid
	return res
}

// fetchBookingThreads returns one thread record per conversation of the
// booking, each carrying its messages oldest first.
func (o *Orchestrator) fetchBookingThreads(ctx context.Context, tenantID int64, booking string) ([]models.Record, error) {
	convs, err := o.fetcher.FetchAllPages(ctx, models.ThreadSpec.Endpoint, tenantID,
		url.Values{"reservationId": {booking}})
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}

	recs := make([]models.Record, 0, len(convs))
	for _, conv := range convs {
		convID, ok := models.FieldString(conv, "id")
		if !ok || convID == "" {
			logging.Ctx(ctx).Warn().Int64("tenant_id", tenantID).Str("booking_id", booking).
				Msg("Skipping conversation without id")
			continue
		}

		msgs, err := o.fetcher.FetchAllPages(ctx, models.ThreadSpec.Endpoint+"/"+convID+"/messages", tenantID, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch messages for conversation %s: %w", convID, err)
		}
		if msgs == nil {
			msgs = []json.RawMessage{}
		}
		models.SortMessages(msgs)

		payload, err := json.Marshal(models.ThreadPayload{Conversation: conv, Messages: msgs})
		if err != nil {
			return nil, fmt.Errorf("encode thread %s: %w", convID, err)
		}
		recs = append(recs, models.Record{ID: convID, TenantID: tenantID, ParentID: booking, Payload: payload})
	}
	return recs, nil
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// SyncAllTenants syncs every active tenant. Tenants run concurrently and a
// failing tenant never affects the others. Tenants already syncing are
// skipped.
func (o *Orchestrator) SyncAllTenants(ctx context.Context, opts SyncOptions) (*SyncSummary, error) {
	ids, err := o.store.ListActiveTenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	metrics.ActiveTenants.Set(float64(len(ids)))

	started := time.Now()
	summary := &SyncSummary{StartedAt: o.now()}
	logging.Info().Int("tenants", len(ids)).Msg("Starting sync of all tenants")

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxConcurrentTenants)
	for _, id := range ids {
		g.Go(func() error {
			report, err := o.SyncTenant(ctx, id, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrSyncInProgress):
				summary.Skipped = append(summary.Skipped, id)
				logging.Info().Int64("tenant_id", id).Msg("Tenant sync already running, skipping")
			case err != nil:
				logging.Error().Err(err).Int64("tenant_id", id).Msg("Tenant sync could not start")
			default:
				summary.Reports = append(summary.Reports, report)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Reports, func(i, j int) bool { return summary.Reports[i].TenantID < summary.Reports[j].TenantID })
	sort.Slice(summary.Skipped, func(i, j int) bool { return summary.Skipped[i] < summary.Skipped[j] })
	summary.Duration = time.Since(started)

	logging.Info().Int("tenants", len(ids)).Int("skipped", len(summary.Skipped)).
		Dur("duration", summary.Duration).Msg("Finished sync of all tenants")
	return summary, nil
}
