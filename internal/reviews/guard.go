// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package reviews

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/metrics"
)

// Outcome is the result of a uniqueness check.
type Outcome struct {
	// Duplicate is true when a review already exists for the pair.
	Duplicate bool

	// ExistingID is the id of the existing review when Duplicate.
	ExistingID string
}

// Guard answers "has this actor already reviewed this target" using the
// cache first and the record store on cache miss. Cache failures are
// never fatal: the check degrades to a store-direct lookup.
//
// The guard is advisory. Two concurrent checks for the same pair can
// both answer unique; the store's unique constraint settles that race
// at insert time.
type Guard struct {
	cache *GuardCache
	store Store
}

// NewGuard creates a uniqueness guard.
func NewGuard(cache *GuardCache, store Store) (*Guard, error) {
	if cache == nil {
		return nil, errors.New("guard cache required")
	}
	if store == nil {
		return nil, errors.New("record store required")
	}
	return &Guard{cache: cache, store: store}, nil
}

// CheckAndReserve checks whether the pair is free. On a cache miss it
// consults the store and warms the cache with what it learns.
func (g *Guard) CheckAndReserve(ctx context.Context, actorID, targetID string) (Outcome, error) {
	state, reviewID, err := g.cache.Lookup(actorID, targetID)
	if err != nil {
		metrics.GuardCacheErrors.Inc()
		logging.Warn().
			Err(err).
			Str("actor_id", actorID).
			Str("target_id", targetID).
			Msg("Guard cache lookup failed, falling back to store")
		state = CacheUnknown
	}

	switch state {
	case CachePresent:
		metrics.GuardCacheHits.WithLabelValues("present").Inc()
		metrics.RecordGuardOutcome(true)
		return Outcome{Duplicate: true, ExistingID: reviewID}, nil

	case CacheAbsent:
		metrics.GuardCacheHits.WithLabelValues("absent").Inc()
		metrics.RecordGuardOutcome(false)
		return Outcome{}, nil
	}

	metrics.GuardStoreChecks.Inc()
	existing, err := g.store.GetByActorTarget(ctx, actorID, targetID)
	switch {
	case err == nil:
		if cerr := g.cache.SetPresent(actorID, targetID, existing.ID); cerr != nil {
			metrics.GuardCacheErrors.Inc()
			logging.Warn().Err(cerr).Msg("Failed to warm present cache entry")
		}
		metrics.RecordGuardOutcome(true)
		return Outcome{Duplicate: true, ExistingID: existing.ID}, nil

	case errors.Is(err, ErrReviewNotFound):
		if cerr := g.cache.SetAbsent(actorID, targetID); cerr != nil {
			metrics.GuardCacheErrors.Inc()
			logging.Warn().Err(cerr).Msg("Failed to warm absent cache entry")
		}
		metrics.RecordGuardOutcome(false)
		return Outcome{}, nil

	default:
		return Outcome{}, fmt.Errorf("uniqueness check: %w", err)
	}
}

// Confirm records a successful insert in the cache. Called after the
// store accepted the row, so present entries reflect durable state.
func (g *Guard) Confirm(actorID, targetID, reviewID string) {
	if err := g.cache.SetPresent(actorID, targetID, reviewID); err != nil {
		metrics.GuardCacheErrors.Inc()
		logging.Warn().
			Err(err).
			Str("actor_id", actorID).
			Str("target_id", targetID).
			Msg("Failed to confirm present cache entry")
	}
}

// Release drops cached state for the pair after a delete, so the slot
// frees immediately instead of after the present TTL.
func (g *Guard) Release(actorID, targetID string) {
	if err := g.cache.Clear(actorID, targetID); err != nil {
		metrics.GuardCacheErrors.Inc()
		logging.Warn().
			Err(err).
			Str("actor_id", actorID).
			Str("target_id", targetID).
			Msg("Failed to clear guard cache entries")
	}
}
