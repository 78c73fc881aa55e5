// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Remote   RemoteConfig   `koanf:"remote"`
	Sync     SyncConfig     `koanf:"sync"`
	Database DatabaseConfig `koanf:"database"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RemoteConfig describes the property-management API being mirrored.
//
// The API allows RequestsPerWindow requests per Window per client IP. The
// quotient is used both as the client pacing interval and as the base delay
// for retry backoff.
type RemoteConfig struct {
	BaseURL            string        `koanf:"base_url"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxRetries         int           `koanf:"max_retries"`
	RequestsPerWindow  int           `koanf:"requests_per_window"`
	Window             time.Duration `koanf:"window"`
	PageSize           int           `koanf:"page_size"`
	MaxConcurrentPages int           `koanf:"max_concurrent_pages"`
	CircuitBreaker     bool          `koanf:"circuit_breaker"`
}

// RequestDelay returns the base inter-request delay (Window / RequestsPerWindow).
func (r RemoteConfig) RequestDelay() time.Duration {
	if r.RequestsPerWindow <= 0 {
		return r.Window
	}
	return r.Window / time.Duration(r.RequestsPerWindow)
}

// SyncConfig controls scheduled and manual full pulls.
type SyncConfig struct {
	Interval      time.Duration `koanf:"interval"`
	InitialSync   bool          `koanf:"initial_sync"`
	DryRun        bool          `koanf:"dry_run"`
	ThreadWorkers int           `koanf:"thread_workers"`
	UpsertChunk   int           `koanf:"upsert_chunk"`
}

// DatabaseConfig selects the relational store.
//
// Driver "duckdb" opens an embedded file at Path. Driver "postgres" connects
// to URL. Setting DATABASE_URL alone is enough to select postgres.
type DatabaseConfig struct {
	Driver       string `koanf:"driver"`
	Path         string `koanf:"path"`
	URL          string `koanf:"url"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// WebhookConfig controls push-event ingestion and remote registration.
type WebhookConfig struct {
	// Username and Password are optional global Basic credentials accepted
	// for every tenant in addition to the per-tenant ones.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// BaseURL is the public URL of this service; registration advertises
	// BaseURL + /webhooks to the remote API.
	BaseURL          string `koanf:"base_url"`
	RegisterOnCreate bool   `koanf:"register_on_create"`
	AlertEmail       string `koanf:"alert_email"`

	// DedupBackend stores processed-event markers: database, badger or memory.
	DedupBackend  string        `koanf:"dedup_backend"`
	DedupPath     string        `koanf:"dedup_path"`
	Retention     time.Duration `koanf:"retention"`
	PruneInterval time.Duration `koanf:"prune_interval"`
	MaxBodyBytes  int64         `koanf:"max_body_bytes"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig protects the account management API.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"`
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// UsePostgres reports whether the postgres backend is selected.
func (c *Config) UsePostgres() bool {
	return c.Database.Driver == "postgres"
}
