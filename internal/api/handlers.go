// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/feed"
	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/reviews"
)

// Handlers serves the activity stream and review endpoints.
type Handlers struct {
	cfg     *config.Config
	feeds   *feed.Store
	reviews *reviews.Service
	router  HealthChecker
}

// HealthChecker reports whether a component is ready to serve.
// *consumer.Router satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewHandlers creates the endpoint handlers. The router checker may be
// nil when no event consumer runs in this process.
func NewHandlers(cfg *config.Config, feeds *feed.Store, svc *reviews.Service, router HealthChecker) *Handlers {
	return &Handlers{
		cfg:     cfg,
		feeds:   feeds,
		reviews: svc,
		router:  router,
	}
}

// pagination parses limit and skip query parameters, clamping limit to
// the configured bounds. Invalid values fall back to defaults rather
// than rejecting the request.
func (h *Handlers) pagination(r *http.Request) (limit, skip int) {
	limit = h.cfg.API.DefaultPageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.cfg.API.MaxPageSize {
		limit = h.cfg.API.MaxPageSize
	}

	if raw := r.URL.Query().Get("skip"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			skip = n
		}
	}
	return limit, skip
}

// ActivityStream returns a page of the global activity feed, newest
// first.
func (h *Handlers) ActivityStream(w http.ResponseWriter, r *http.Request) {
	limit, skip := h.pagination(r)

	items, total, err := h.feeds.Global(r.Context(), limit, skip)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to read global feed")
		writeError(w, http.StatusInternalServerError, "failed to read activity stream")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items: items,
		Total: total,
		Limit: limit,
		Skip:  skip,
	})
}

// ActivityStreamUser returns a page of the authenticated actor's feed.
func (h *Handlers) ActivityStreamUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	limit, skip := h.pagination(r)

	items, total, err := h.feeds.ForActor(r.Context(), actorID, limit, skip)
	if err != nil {
		logging.Error().Err(err).Str("actor_id", actorID).Msg("Failed to read actor feed")
		writeError(w, http.StatusInternalServerError, "failed to read activity stream")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items: items,
		Total: total,
		Limit: limit,
		Skip:  skip,
	})
}

// ActivityStreamStats returns feed size counters.
func (h *Handlers) ActivityStreamStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.feeds.Stats(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to compute feed stats")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
