// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRemote() error {
	if err := validateHTTPURL(c.Remote.BaseURL, "REMOTE_BASE_URL"); err != nil {
		return err
	}
	if !strings.HasSuffix(c.Remote.BaseURL, "/") {
		return fmt.Errorf("REMOTE_BASE_URL must end with '/'")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}
	if c.Remote.MaxRetries < 0 || c.Remote.MaxRetries > 10 {
		return fmt.Errorf("REMOTE_MAX_RETRIES must be between 0 and 10")
	}
	if c.Remote.RequestsPerWindow < 1 {
		return fmt.Errorf("REMOTE_REQUESTS_PER_WINDOW must be at least 1")
	}
	if c.Remote.Window <= 0 {
		return fmt.Errorf("REMOTE_RATE_WINDOW must be positive")
	}
	if c.Remote.PageSize < 1 || c.Remote.PageSize > 1000 {
		return fmt.Errorf("REMOTE_PAGE_SIZE must be between 1 and 1000")
	}
	if c.Remote.MaxConcurrentPages < 1 {
		return fmt.Errorf("REMOTE_MAX_CONCURRENT_PAGES must be at least 1")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m")
	}
	if c.Sync.ThreadWorkers < 1 {
		return fmt.Errorf("SYNC_THREAD_WORKERS must be at least 1")
	}
	if c.Sync.UpsertChunk < 1 {
		return fmt.Errorf("SYNC_UPSERT_CHUNK must be at least 1")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "duckdb":
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DATABASE_DRIVER=duckdb")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of: duckdb, postgres")
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if (c.Webhook.Username == "") != (c.Webhook.Password == "") {
		return fmt.Errorf("WEBHOOK_USERNAME and WEBHOOK_PASSWORD must be set together")
	}
	if c.Webhook.BaseURL != "" {
		if err := validateHTTPURL(c.Webhook.BaseURL, "WEBHOOK_BASE_URL"); err != nil {
			return err
		}
	}
	if c.Webhook.RegisterOnCreate && c.Webhook.BaseURL == "" {
		return fmt.Errorf("WEBHOOK_BASE_URL is required when WEBHOOK_REGISTER_ON_CREATE=true")
	}
	switch c.Webhook.DedupBackend {
	case "database", "memory":
	case "badger":
		if c.Webhook.DedupPath == "" {
			return fmt.Errorf("WEBHOOK_DEDUP_PATH is required when WEBHOOK_DEDUP_BACKEND=badger")
		}
	default:
		return fmt.Errorf("WEBHOOK_DEDUP_BACKEND must be one of: database, badger, memory")
	}
	if c.Webhook.Retention < time.Minute {
		return fmt.Errorf("WEBHOOK_RETENTION must be at least 1m")
	}
	if c.Webhook.PruneInterval <= 0 {
		return fmt.Errorf("WEBHOOK_PRUNE_INTERVAL must be positive")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE is jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be one of: none, jwt")
	}

	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// validateHTTPURL checks that rawURL is an absolute http(s) URL without a
// query string.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsed.RawQuery)
	}
	return nil
}
