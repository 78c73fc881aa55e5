// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/staysync/internal/ingest"
	"github.com/tomtom215/staysync/internal/logging"
	"github.com/tomtom215/staysync/internal/models"
)

const (
	defaultMaxWebhookBody = 1 << 20
	webhookRealm          = `Basic realm="webhooks", charset="UTF-8"`
)

// Webhook receives push events from the remote API.
//
// @Summary Receive a push event
// @Description Authenticates with HTTP Basic, deduplicates and routes the event.
// @Description Every outcome except rejected credentials is acknowledged with 200.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} models.WebhookAck "accepted"
// @Failure 401 {object} models.WebhookAck "rejected"
// @Router /webhooks [post]
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxWebhookBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		// The event still goes through authentication so a bad sender is
		// refused rather than acknowledged.
		logging.Ctx(r.Context()).Warn().Err(err).Int64("limit", limit).Msg("Webhook body unreadable")
		body = nil
	}

	username, password, present := r.BasicAuth()
	res := h.ingestor.Handle(r.Context(), ingest.Credentials{
		Username: username,
		Password: password,
		Present:  present,
	}, body)

	if !res.Accepted() {
		w.Header().Set("WWW-Authenticate", webhookRealm)
		writeAck(w, http.StatusUnauthorized, "rejected")
		return
	}
	writeAck(w, http.StatusOK, "accepted")
}

func writeAck(w http.ResponseWriter, status int, ack string) {
	data, _ := json.Marshal(models.WebhookAck{Status: ack})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write webhook acknowledgement")
	}
}
