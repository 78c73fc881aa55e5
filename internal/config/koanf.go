// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/staysync/config.yaml",
	"/etc/staysync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:            "https://api.hostaway.com/v1/",
			Timeout:            5 * time.Second,
			MaxRetries:         2,
			RequestsPerWindow:  15,
			Window:             10 * time.Second,
			PageSize:           100,
			MaxConcurrentPages: 4,
			CircuitBreaker:     true,
		},
		Sync: SyncConfig{
			Interval:      6 * time.Hour,
			InitialSync:   false,
			DryRun:        false,
			ThreadWorkers: 4,
			UpsertChunk:   500,
		},
		Database: DatabaseConfig{
			Driver:       "duckdb",
			Path:         "/data/staysync.duckdb",
			URL:          "",
			MaxOpenConns: 10,
		},
		Webhook: WebhookConfig{
			DedupBackend:  "database",
			DedupPath:     "/data/markers",
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
			MaxBodyBytes:  1 << 20,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file and
// the environment, in that order of increasing precedence, then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// The embedded store takes a file path, so a DSN always means postgres.
	if cfg.Database.URL != "" && cfg.Database.Driver == "duckdb" {
		cfg.Database.Driver = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that arrived from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Remote API
	"remote_base_url":             "remote.base_url",
	"remote_timeout":              "remote.timeout",
	"remote_max_retries":          "remote.max_retries",
	"remote_requests_per_window":  "remote.requests_per_window",
	"remote_rate_window":          "remote.window",
	"remote_page_size":            "remote.page_size",
	"remote_max_concurrent_pages": "remote.max_concurrent_pages",
	"remote_circuit_breaker":      "remote.circuit_breaker",

	// Sync
	"sync_interval":       "sync.interval",
	"sync_on_startup":     "sync.initial_sync",
	"dry_run":             "sync.dry_run",
	"sync_thread_workers": "sync.thread_workers",
	"sync_upsert_chunk":   "sync.upsert_chunk",

	// Database
	"database_driver":   "database.driver",
	"duckdb_path":       "database.path",
	"database_url":      "database.url",
	"db_max_open_conns": "database.max_open_conns",

	// Webhooks
	"webhook_username":           "webhook.username",
	"webhook_password":           "webhook.password",
	"webhook_base_url":           "webhook.base_url",
	"webhook_register_on_create": "webhook.register_on_create",
	"webhook_alert_email":        "webhook.alert_email",
	"webhook_dedup_backend":      "webhook.dedup_backend",
	"webhook_dedup_path":         "webhook.dedup_path",
	"webhook_retention":          "webhook.retention",
	"webhook_prune_interval":     "webhook.prune_interval",
	"webhook_max_body_bytes":     "webhook.max_body_bytes",

	// Server
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	// Security
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"allowed_origins":     "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped.
//
//	DATABASE_URL    -> database.url
//	ALLOWED_ORIGINS -> security.cors_origins
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
