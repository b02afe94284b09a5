// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package api provides the HTTP surface using the Chi router: the
// activity stream read endpoints, the review write path, health
// probes, and Prometheus metrics exposition.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/shelfstream/shelfstream/internal/logging"
)

// listResponse is the envelope for paginated collections.
type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// errorResponse is the envelope for error replies.
type errorResponse struct {
	Error string `json:"error"`

	// ExistingID is set on duplicate-review conflicts so clients can
	// navigate to the review that holds the slot.
	ExistingID string `json:"existingId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
