// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"net/http"

	"github.com/shelfstream/shelfstream/internal/logging"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthLive reports process liveness. It always succeeds while the
// process can serve requests.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HealthReady reports readiness: the feed store, the record store, and
// the event router (when one runs in this process) must all respond.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := h.feeds.HealthCheck(r.Context()); err != nil {
		checks["feed_store"] = err.Error()
		healthy = false
	} else {
		checks["feed_store"] = "ok"
	}

	if err := h.reviews.HealthCheck(r.Context()); err != nil {
		checks["record_store"] = err.Error()
		healthy = false
	} else {
		checks["record_store"] = "ok"
	}

	if h.router != nil {
		if err := h.router.HealthCheck(r.Context()); err != nil {
			checks["event_router"] = err.Error()
			healthy = false
		} else {
			checks["event_router"] = "ok"
		}
	}

	if !healthy {
		logging.Warn().Interface("checks", checks).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
}
