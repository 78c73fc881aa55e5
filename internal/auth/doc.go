// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

/*
Package auth provides the credential primitives used by the HTTP surface.

Two independent mechanisms live here:

  - Webhook Basic credentials. Tenant webhook passwords are stored as bcrypt
    hashes (HashPassword / VerifyPassword). The optional global webhook
    credential from configuration is wrapped in a BasicAuthManager, which
    hashes the password once at startup and compares usernames in constant
    time.
  - Admin bearer tokens. JWTManager signs and validates HS256 tokens, and
    Middleware.RequireAdmin guards the account management routes.

# Usage

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	mw := auth.NewMiddleware(jwtManager, cfg.Security.AuthMode)
	r.With(mw.RequireAdmin).Post("/api/v1/accounts", h.CreateAccount)

With AUTH_MODE=none the middleware passes every request through with
anonymous admin claims; use it only on trusted networks.
*/
package auth
