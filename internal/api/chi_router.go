// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/staysync/internal/auth"
	"github.com/tomtom215/staysync/internal/middleware"
)

// webhookRateMultiplier scales the per-IP budget for the webhook route,
// since all push events for all tenants arrive from a few sender addresses.
const webhookRateMultiplier = 10

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler *Handler
	chiMW   *ChiMiddleware
	authMW  *auth.Middleware
}

// NewRouter creates a router. A nil chiMW uses the default middleware
// configuration.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, authMW *auth.Middleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMW: chiMW, authMW: authMW}
}

// SetupChi builds the HTTP handler.
//
// Routes:
//
//	POST   /webhooks                                 push events (HTTP Basic)
//	GET    /api/v1/health/live                       liveness
//	GET    /api/v1/health/ready                      readiness
//	GET    /metrics                                  Prometheus
//	POST   /api/v1/accounts                          create account (admin)
//	GET    /api/v1/accounts/{id}                     account with sync status (admin)
//	PATCH  /api/v1/accounts/{id}                     update account (admin)
//	DELETE /api/v1/accounts/{id}?soft=               deactivate or delete (admin)
//	POST   /api/v1/accounts/{id}/sync?dry_run=       trigger sync (admin)
//	GET    /api/v1/accounts/{id}/threads/{threadID}  normalized thread (admin)
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMW.CORS())
	r.Use(middleware.PrometheusMetrics)

	h := router.handler
	cfg := router.chiMW.config

	r.Group(func(r chi.Router) {
		r.Use(router.chiMW.RateLimitCustom(cfg.RateLimitRequests*webhookRateMultiplier, cfg.RateLimitWindow))
		r.Post("/webhooks", h.Webhook)
	})

	r.Get("/api/v1/health/live", h.HealthLive)
	r.Get("/api/v1/health/ready", h.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.Use(router.chiMW.RateLimit())
		r.Use(router.authMW.RequireAdmin)

		r.Post("/", h.CreateAccount)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Patch("/", h.UpdateAccount)
			r.Delete("/", h.DeleteAccount)
			r.Post("/sync", h.TriggerSync)
			r.Get("/threads/{threadID}", h.GetThread)
		})
	})

	return r
}
