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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
)

// TokenMinter exchanges a tenant's client secret for a bearer token.
type TokenMinter interface {
	Mint(ctx context.Context, accountID int64, secret string) (string, error)
}

// HTTPTokenMinter mints tokens with the client-credentials grant.
type HTTPTokenMinter struct {
	tokenURL string
	client   *http.Client
}

// NewHTTPTokenMinter returns a minter posting to <base>accessTokens.
func NewHTTPTokenMinter(cfg config.RemoteConfig) *HTTPTokenMinter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTokenMinter{
		tokenURL: endpointURL(cfg.BaseURL, "accessTokens"),
		client:   &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// Mint performs the exchange. The account id is the client id.
func (m *HTTPTokenMinter) Mint(ctx context.Context, accountID int64, secret string) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {strconv.FormatInt(accountID, 10)},
		"client_secret": {secret},
		"scope":         {"general"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest("accessTokens", 0, time.Since(start))
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest("accessTokens", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readBodyForError(resp.Body)
		logging.Error().Int64("tenant_id", accountID).Int("status", resp.StatusCode).
			Msg("Token request rejected")
		return "", &StatusError{Method: http.MethodPost, Endpoint: "accessTokens", StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("no access_token in token response")
	}
	return tr.AccessToken, nil
}

// endpointURL joins base and a relative endpoint, tolerating a missing
// trailing slash on base.
func endpointURL(base, endpoint string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(endpoint, "/")
}
