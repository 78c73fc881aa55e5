// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/staysync/internal/api"
	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/config"
	"github.com/tomtom215/staysync/internal/database"
	"github.com/tomtom215/staysync/internal/ingest"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
	"github.com/tomtom215/staysync/internal/supervisor"
	"github.com/tomtom215/staysync/internal/supervisor/services"
	"github.com/tomtom215/staysync/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("remote", cfg.Remote.BaseURL).
		Str("database", cfg.Database.Driver).
		Str("auth_mode", cfg.Security.AuthMode).
		Dur("sync_interval", cfg.Sync.Interval).
		Bool("dry_run", cfg.Sync.DryRun).
		Msg("Starting Staysync")

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	markers, err := ingest.NewMarkerStore(cfg.Webhook, db)
	if err != nil {
		return fmt.Errorf("open marker store: %w", err)
	}
	defer func() {
		if err := markers.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing marker store")
		}
	}()
	logging.Info().Str("backend", cfg.Webhook.DedupBackend).Msg("Processed-event marker store ready")

	client := sync.NewClient(cfg.Remote, sync.NewCredentialManager(db, sync.NewHTTPTokenMinter(cfg.Remote)))
	orch := sync.NewOrchestrator(client, db, sync.DatabaseWriters(db, cfg.Sync.UpsertChunk), cfg.Sync.ThreadWorkers)
	manager := sync.NewManager(orch, cfg.Sync)

	ingestor, tenants, err := newIngestor(cfg, db, markers)
	if err != nil {
		return err
	}

	authMW, err := newAuthMiddleware(cfg)
	if err != nil {
		return err
	}

	handler := api.NewHandler(db, cfg, manager, client, ingestor, tenants)
	router := api.NewRouter(handler,
		api.NewChiMiddleware(api.NewChiMiddlewareConfig(cfg.Security)),
		authMW)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewPrunerService(markers, cfg.Webhook.Retention, cfg.Webhook.PruneInterval))
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Staysync stopped")
	return nil
}

// newIngestor wires webhook authentication, dedup and the entity writers.
// Webhook writes always persist; dry-run only applies to full pulls.
func newIngestor(cfg *config.Config, db *database.DB, markers ingest.MarkerStore) (*ingest.Ingestor, *ingest.TenantCache, error) {
	var global *auth.BasicAuthManager
	if cfg.Webhook.Username != "" {
		var err error
		global, err = auth.NewBasicAuthManager(cfg.Webhook.Username, cfg.Webhook.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("global webhook credentials: %w", err)
		}
		logging.Info().Str("username", cfg.Webhook.Username).Msg("Global webhook credentials enabled")
	}

	tenants := ingest.NewTenantCache(db)
	ingestor := ingest.NewIngestor(
		ingest.NewAuthenticator(tenants, global),
		markers,
		database.NewWriter(db, models.BookingSpec, 0, false),
		database.NewWriter(db, models.ThreadSpec, 0, false),
	)
	return ingestor, tenants, nil
}

func newAuthMiddleware(cfg *config.Config) (*auth.Middleware, error) {
	if cfg.Security.AuthMode != "jwt" {
		logging.Warn().Str("auth_mode", cfg.Security.AuthMode).Msg("Account API authentication disabled")
		return auth.NewMiddleware(nil, cfg.Security.AuthMode), nil
	}
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("initialize JWT manager: %w", err)
	}
	return auth.NewMiddleware(jwtManager, cfg.Security.AuthMode), nil
}
