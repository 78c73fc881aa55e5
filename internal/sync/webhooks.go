// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/metrics"
)

const webhooksEndpoint = "webhooks/unifiedWebhooks"

// WebhookRegistration is what the remote side needs to push events to us.
type WebhookRegistration struct {
	// URL is the public base URL of this service; "/webhooks" is appended.
	URL        string
	Login      string
	Password   string
	AlertEmail string
}

type webhookBody struct {
	IsEnabled            int    `json:"isEnabled"`
	URL                  string `json:"url"`
	Login                string `json:"login"`
	Password             string `json:"password"`
	AlertingEmailAddress string `json:"alertingEmailAddress,omitempty"`
}

type webhookResponse struct {
	Status string `json:"status"`
	Result struct {
		ID int64 `json:"id"`
	} `json:"result"`
}

// RegisterWebhook creates a unified webhook for the tenant and returns its
// remote id.
func (c *Client) RegisterWebhook(ctx context.Context, tenantID int64, reg WebhookRegistration) (int64, error) {
	body, err := json.Marshal(webhookBody{
		IsEnabled:            1,
		URL:                  strings.TrimSuffix(reg.URL, "/") + "/webhooks",
		Login:                reg.Login,
		Password:             reg.Password,
		AlertingEmailAddress: reg.AlertEmail,
	})
	if err != nil {
		return 0, fmt.Errorf("encode webhook registration: %w", err)
	}

	resp, err := c.send(ctx, tenantID, http.MethodPost, webhooksEndpoint, body)
	if err != nil {
		return 0, err
	}

	var wr webhookResponse
	if err := json.Unmarshal(resp, &wr); err != nil {
		return 0, fmt.Errorf("decode webhook registration: %w", err)
	}
	if wr.Result.ID == 0 {
		return 0, errors.New("webhook registration returned no id")
	}

	logging.Info().Int64("tenant_id", tenantID).Int64("webhook_id", wr.Result.ID).
		Msg("Registered remote webhook")
	return wr.Result.ID, nil
}

// DeleteWebhook removes a unified webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, tenantID, webhookID int64) error {
	endpoint := webhooksEndpoint + "/" + strconv.FormatInt(webhookID, 10)
	if _, err := c.send(ctx, tenantID, http.MethodDelete, endpoint, nil); err != nil {
		return err
	}
	logging.Info().Int64("tenant_id", tenantID).Int64("webhook_id", webhookID).
		Msg("Deleted remote webhook")
	return nil
}

// send issues one tenant-authenticated JSON request. A 403 refreshes the
// credential and retries once; nothing else is retried.
func (c *Client) send(ctx context.Context, tenantID int64, method, endpoint string, body []byte) ([]byte, error) {
	if c.tokens == nil {
		return nil, ErrNoCredentials
	}
	token, err := c.tokens.Token(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out, err := c.sendOnce(ctx, method, endpoint, token, body)
	if StatusCode(err) == http.StatusForbidden {
		metrics.RecordRetry("credential")
		if token, err = c.tokens.Refresh(ctx, tenantID, token); err != nil {
			return nil, fmt.Errorf("refresh after 403: %w", err)
		}
		out, err = c.sendOnce(ctx, method, endpoint, token, body)
	}
	return out, err
}

func (c *Client) sendOnce(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL(c.cfg.BaseURL, endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(webhooksEndpoint, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest(webhooksEndpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: readBodyForError(resp.Body)}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return buf.Bytes(), nil
}
