// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
	"github.com/tomtom215/staysync/internal/models"
)

const (
	defaultPageSize           = 100
	defaultMaxConcurrentPages = 4
	breakerName               = "remote-api"

	// maxCollectionPages bounds the page count FetchAllPages derives from
	// the remote's count field.
	maxCollectionPages = 10_000
)

// TokenSource supplies and refreshes per-tenant bearer tokens.
// *CredentialManager is the production implementation.
type TokenSource interface {
	Token(ctx context.Context, tenantID int64) (string, error)
	Refresh(ctx context.Context, tenantID int64, failed string) (string, error)
}

// PageRequest addresses one page of a remote collection.
type PageRequest struct {
	Endpoint string

	// TenantID enables credential refresh on 403. Zero means no tenant
	// context and a 403 is terminal.
	TenantID int64

	// Token is the bearer credential. When empty and TenantID is set the
	// client asks its TokenSource.
	Token string

	PageIndex int
	PageSize  int

	// Params are extra query parameters (e.g. reservationId).
	Params url.Values
}

// Client talks to the remote property-management API.
type Client struct {
	cfg     config.RemoteConfig
	http    *http.Client
	limiter *rate.Limiter
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*models.Page]

	// sleep waits between retries. Tests replace it to record delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. tokens may be nil for callers that always pass
// an explicit token and no tenant id.
func NewClient(cfg config.RemoteConfig, tokens TokenSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxConcurrentPages <= 0 {
		cfg.MaxConcurrentPages = defaultMaxConcurrentPages
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if d := cfg.RequestDelay(); d > 0 {
		limit = rate.Every(d)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		tokens:  tokens,
		sleep:   sleepContext,
	}
	if cfg.CircuitBreaker {
		c.breaker = newBreaker()
	}
	return c
}

// newBreaker trips after a sustained run of server-side failures. Client
// errors (4xx, including 403 and 429) count as successes since they say
// nothing about remote availability.
func newBreaker() *gobreaker.CircuitBreaker[*models.Page] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*models.Page](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logging.Warn().Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchPage fetches one page, retrying per the client's retry policy. It
// returns the page and the HTTP status of the final attempt (0 when no
// response was received).
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*models.Page, int, error) {
	if req.PageSize <= 0 {
		req.PageSize = c.cfg.PageSize
	}

	token := req.Token
	if token == "" && req.TenantID != 0 && c.tokens != nil {
		t, err := c.tokens.Token(ctx, req.TenantID)
		if err != nil {
			return nil, 0, err
		}
		token = t
	}

	delay := c.cfg.RequestDelay()
	retries := 0
	for {
		page, err := c.attempt(ctx, req, token)
		if err == nil {
			return page, http.StatusOK, nil
		}
		status := StatusCode(err)

		reason, retryable := c.classify(ctx, err, req.TenantID)
		if !retryable {
			return nil, status, err
		}
		if retries >= c.cfg.MaxRetries {
			logging.Warn().Str("endpoint", req.Endpoint).Int("page", req.PageIndex).
				Int("retries", retries).Err(err).Msg("Retry budget exhausted")
			return nil, status, err
		}
		retries++
		metrics.RecordRetry(reason)

		switch reason {
		case "credential":
			logging.Info().Int64("tenant_id", req.TenantID).Str("endpoint", req.Endpoint).
				Msg("Credential rejected, refreshing")
			fresh, rerr := c.tokens.Refresh(ctx, req.TenantID, token)
			if rerr != nil {
				return nil, status, fmt.Errorf("refresh after 403: %w", rerr)
			}
			token = fresh
		case "rate_limited":
			if serr := c.sleep(ctx, 2*delay); serr != nil {
				return nil, status, serr
			}
		default:
			if serr := c.sleep(ctx, time.Duration(retries)*delay); serr != nil {
				return nil, status, serr
			}
		}
		logging.Debug().Str("endpoint", req.Endpoint).Int("page", req.PageIndex).
			Str("reason", reason).Int("retry", retries).Msg("Retrying request")
	}
}

// classify maps a failed attempt to a retry reason.
func (c *Client) classify(ctx context.Context, err error, tenantID int64) (string, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return "rate_limited", true
		case se.StatusCode >= 500:
			return "server_error", true
		case se.StatusCode == http.StatusForbidden && tenantID != 0 && c.tokens != nil:
			return "credential", true
		}
		return "", false
	}
	if isTimeout(err) && ctx.Err() == nil {
		return "timeout", true
	}
	return "", false
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// attempt performs a single request through the breaker when enabled.
func (c *Client) attempt(ctx context.Context, req PageRequest, token string) (*models.Page, error) {
	if c.breaker == nil {
		return c.get(ctx, req, token)
	}
	page, err := c.breaker.Execute(func() (*models.Page, error) {
		return c.get(ctx, req, token)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		logging.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("[CIRCUIT BREAKER] Request rejected")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return page, err
}

// get issues one GET and decodes the page envelope.
func (c *Client) get(ctx context.Context, req PageRequest, token string) (*models.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range req.Params {
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(req.PageSize))
	q.Set("offset", strconv.Itoa(req.PageIndex*req.PageSize))
	target := endpointURL(c.cfg.BaseURL, req.Endpoint) + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordRemoteRequest(req.Endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("GET %s: %w", req.Endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest(req.Endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     http.MethodGet,
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       readBodyForError(resp.Body),
		}
	}

	var page models.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode %s page %d: %w", req.Endpoint, req.PageIndex, err)
	}
	if page.Status != "" && page.Status != "success" {
		return nil, fmt.Errorf("%s page %d: remote status %q", req.Endpoint, req.PageIndex, page.Status)
	}
	return &page, nil
}

// FetchAllPages returns every record of endpoint for the tenant. Page 0 is
// read first to learn the total count and page size; the remaining pages
// are fetched concurrently. Any page failure fails the whole call.
func (c *Client) FetchAllPages(ctx context.Context, endpoint string, tenantID int64, params url.Values) ([]json.RawMessage, error) {
	var token string
	if tenantID != 0 && c.tokens != nil {
		t, err := c.tokens.Token(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		token = t
	}

	first, _, err := c.FetchPage(ctx, PageRequest{
		Endpoint: endpoint,
		TenantID: tenantID,
		Token:    token,
		PageSize: c.cfg.PageSize,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	limit := first.Limit
	if limit <= 0 {
		limit = c.cfg.PageSize
	}
	if first.Count < 0 || first.Count/limit >= maxCollectionPages {
		return nil, fmt.Errorf("%s: count %d with limit %d: %w", endpoint, first.Count, limit, ErrImplausibleCount)
	}
	total := first.TotalPages(limit)
	if total <= 1 {
		return first.Result, nil
	}

	logging.Debug().Str("endpoint", endpoint).Int64("tenant_id", tenantID).
		Int("count", first.Count).Int("pages", total).Msg("Fetching remaining pages")

	pages := make([][]json.RawMessage, total)
	pages[0] = first.Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentPages)
	for i := 1; i < total; i++ {
		g.Go(func() error {
			// A page that ran into a 403 may have refreshed the token since.
			var tok string
			if tenantID != 0 && c.tokens != nil {
				t, err := c.tokens.Token(gctx, tenantID)
				if err != nil {
					return err
				}
				tok = t
			}
			page, _, err := c.FetchPage(gctx, PageRequest{
				Endpoint:  endpoint,
				TenantID:  tenantID,
				Token:     tok,
				PageIndex: i,
				PageSize:  limit,
				Params:    params,
			})
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			pages[i] = page.Result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, first.Count)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}
