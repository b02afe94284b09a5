// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/reviews"
)

// CreateReview creates a review for the authenticated actor. A second
// review by the same actor for the same target returns 409 with the id
// of the review already holding the slot.
func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	var req reviews.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	review, err := h.reviews.Create(r.Context(), actorID, &req)
	if err != nil {
		h.writeCreateError(w, actorID, err)
		return
	}

	writeJSON(w, http.StatusCreated, review)
}

func (h *Handlers) writeCreateError(w http.ResponseWriter, actorID string, err error) {
	if existingID, isDup := reviews.IsDuplicate(err); isDup {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:      "review already exists for this target",
			ExistingID: existingID,
		})
		return
	}

	switch {
	case errors.Is(err, reviews.ErrTargetNotFound):
		writeError(w, http.StatusUnprocessableEntity, "target does not exist")
	case errors.Is(err, reviews.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Error().Err(err).Str("actor_id", actorID).Msg("Failed to create review")
		writeError(w, http.StatusInternalServerError, "failed to create review")
	}
}

// GetReview returns a single review by id.
func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")

	review, err := h.reviews.Get(r.Context(), reviewID)
	if err != nil {
		if errors.Is(err, reviews.ErrReviewNotFound) {
			writeError(w, http.StatusNotFound, "review not found")
			return
		}
		logging.Error().Err(err).Str("review_id", reviewID).Msg("Failed to load review")
		writeError(w, http.StatusInternalServerError, "failed to load review")
		return
	}

	writeJSON(w, http.StatusOK, review)
}

// GetReviewByPair returns an actor's review for a target, if any.
// Clients use this to check for an existing review before offering the
// write form.
func (h *Handlers) GetReviewByPair(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	targetID := chi.URLParam(r, "targetID")

	review, err := h.reviews.GetByActorTarget(r.Context(), actorID, targetID)
	if err != nil {
		if errors.Is(err, reviews.ErrReviewNotFound) {
			writeError(w, http.StatusNotFound, "review not found")
			return
		}
		logging.Error().Err(err).Str("actor_id", actorID).Str("target_id", targetID).
			Msg("Failed to load review by pair")
		writeError(w, http.StatusInternalServerError, "failed to load review")
		return
	}

	writeJSON(w, http.StatusOK, review)
}

// DeleteReview removes the authenticated actor's own review and frees
// the uniqueness slot.
func (h *Handlers) DeleteReview(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}

	reviewID := chi.URLParam(r, "reviewID")

	err := h.reviews.Delete(r.Context(), actorID, reviewID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, reviews.ErrReviewNotFound):
		writeError(w, http.StatusNotFound, "review not found")
	case errors.Is(err, reviews.ErrNotOwner):
		writeError(w, http.StatusForbidden, "review belongs to another actor")
	default:
		logging.Error().Err(err).Str("review_id", reviewID).Msg("Failed to delete review")
		writeError(w, http.StatusInternalServerError, "failed to delete review")
	}
}
