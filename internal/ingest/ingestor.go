// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
	"github.com/tomtom215/staysync/internal/models"
)

// Outcome is the terminal state of one push event.
type Outcome string

const (
	OutcomeRejected    Outcome = "rejected"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeHandled     Outcome = "handled"
	OutcomeFailed      Outcome = "failed"
)

// Event kinds with a handler.
const (
	KindReservationCreated = "reservation.created"
	KindReservationUpdated = "reservation.updated"
	KindMessageReceived    = "message.received"
)

// BookingWriter upserts booking payloads.
type BookingWriter interface {
	UpsertPayloads(ctx context.Context, tenantID int64, payloads []json.RawMessage) (*database.UpsertResult, error)
}

// ThreadMerger folds one message into a stored thread.
type ThreadMerger interface {
	MergeMessage(ctx context.Context, m database.ThreadMerge) (bool, error)
}

// Handler applies one routed event.
type Handler func(ctx context.Context, env *Envelope) error

// Result describes how an event was disposed of.
type Result struct {
	Outcome  Outcome
	Kind     string
	TenantID int64
	Key      string
	Err      error
}

// Accepted reports whether the sender gets an acknowledgement. Only
// rejected credentials are refused.
func (r *Result) Accepted() bool {
	return r.Outcome != OutcomeRejected
}

// Ingestor runs push events through authentication, deduplication and
// routing.
type Ingestor struct {
	auth    *Authenticator
	markers MarkerStore
	routes  map[string]Handler
}

// NewIngestor wires the static routing table to the given writers.
func NewIngestor(authn *Authenticator, markers MarkerStore, bookings BookingWriter, threads ThreadMerger) *Ingestor {
	in := &Ingestor{auth: authn, markers: markers}
	in.routes = map[string]Handler{
		KindReservationCreated: bookingHandler(bookings),
		KindReservationUpdated: bookingHandler(bookings),
		KindMessageReceived:    messageHandler(threads),
	}
	return in
}

// Handle processes one event body. It never returns an error: failures are
// logged with the full body and reported in the Result.
func (in *Ingestor) Handle(ctx context.Context, creds Credentials, body []byte) *Result {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	env, parseErr := ParseEnvelope(body)
	res := &Result{Kind: env.Kind, TenantID: env.TenantID}
	defer func() { metrics.RecordEvent(in.metricKind(res.Kind), string(res.Outcome)) }()

	tenant, err := in.auth.Authenticate(ctx, env.TenantID, creds)
	if err != nil {
		res.Outcome, res.Err = OutcomeRejected, err
		log.Warn().Int64("tenant_id", env.TenantID).Str("event_kind", env.Kind).
			Bool("credentials_present", creds.Present).Msg("Webhook authentication failed")
		return res
	}

	if parseErr != nil {
		res.Outcome, res.Err = OutcomeMalformed, parseErr
		log.Warn().Err(parseErr).RawJSON("envelope", safeJSON(body)).Msg("Malformed webhook event")
		return res
	}

	if tenant == nil {
		res.Outcome = OutcomeUnsupported
		log.Warn().Int64("tenant_id", env.TenantID).Str("event_kind", env.Kind).
			Msg("Webhook for unknown or inactive tenant")
		return res
	}

	if key, ok := DedupKey(env); ok {
		res.Key = key
		first, err := in.markers.MarkProcessed(ctx, key, env.TenantID, env.Kind)
		if err != nil {
			// Handling twice is safe because upserts are idempotent.
			log.Error().Err(err).Str("event_key", key).Msg("Marker check failed, handling anyway")
		} else if !first {
			res.Outcome = OutcomeDuplicate
			log.Info().Str("event_key", key).Str("event_kind", env.Kind).Int64("tenant_id", env.TenantID).
				Msg("Duplicate webhook event ignored")
			return res
		}
	} else {
		log.Debug().Str("event_kind", env.Kind).Msg("Webhook event has no dedup key")
	}

	handler, ok := in.routes[env.Kind]
	if !ok {
		res.Outcome = OutcomeUnsupported
		log.Warn().Str("event_kind", env.Kind).Int64("tenant_id", env.TenantID).Msg("Unsupported webhook event kind")
		return res
	}

	start := time.Now()
	if err := in.safeHandle(ctx, handler, env); err != nil {
		res.Err = err
		res.Outcome = OutcomeFailed
		if errors.Is(err, ErrMalformed) {
			res.Outcome = OutcomeMalformed
		}
		log.Error().Err(err).Str("event_kind", env.Kind).Int64("tenant_id", env.TenantID).
			RawJSON("envelope", safeJSON(body)).Msg("Webhook event handling failed")
		return res
	}

	res.Outcome = OutcomeHandled
	log.Info().Str("event_kind", env.Kind).Int64("tenant_id", env.TenantID).
		Dur("duration", time.Since(start)).Msg("Webhook event handled")
	return res
}

// metricKind bounds the kind label to the routed kinds. The envelope is
// read before authentication, so any other value is caller-controlled.
func (in *Ingestor) metricKind(kind string) string {
	if _, ok := in.routes[kind]; ok {
		return kind
	}
	return metrics.OtherEventKind
}

// safeHandle turns a handler panic into an error.
func (in *Ingestor) safeHandle(ctx context.Context, h Handler, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}

func bookingHandler(w BookingWriter) Handler {
	return func(ctx context.Context, env *Envelope) error {
		if env.Data == nil {
			return fmt.Errorf("%w: %s without data", ErrMalformed, env.Kind)
		}
		res, err := w.UpsertPayloads(ctx, env.TenantID, []json.RawMessage{env.Data})
		if err != nil {
			return err
		}
		if res.Accepted == 0 {
			return fmt.Errorf("%w: booking payload has no usable id", ErrMalformed)
		}
		return nil
	}
}

func messageHandler(w ThreadMerger) Handler {
	return func(ctx context.Context, env *Envelope) error {
		if env.Data == nil {
			return fmt.Errorf("%w: %s without data", ErrMalformed, env.Kind)
		}
		threadID, ok := env.DataField("conversationId")
		if !ok || threadID == "" {
			return fmt.Errorf("%w: message without conversationId", ErrMalformed)
		}
		bookingID, _ := env.DataField("reservationId")

		conv := map[string]string{"id": threadID}
		if bookingID != "" {
			conv["reservationId"] = bookingID
		}
		if listingID, ok := env.DataField("listingMapId"); ok && listingID != "" {
			conv["listingMapId"] = listingID
		}
		convJSON, err := json.Marshal(conv)
		if err != nil {
			return err
		}

		_, err = w.MergeMessage(ctx, database.ThreadMerge{
			TenantID:     env.TenantID,
			ThreadID:     threadID,
			BookingID:    bookingID,
			Conversation: convJSON,
			Message:      env.Data,
		})
		if errors.Is(err, models.ErrMissingID) {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return err
	}
}

// safeJSON returns body for RawJSON logging, or a quoted string when it is
// not valid JSON.
func safeJSON(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
