// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shelfstream/shelfstream/internal/enrich"
	"github.com/shelfstream/shelfstream/internal/feed"
	"github.com/shelfstream/shelfstream/internal/logging"
)

// CatalogValidator checks that a target entity exists before a review
// is accepted for it.
type CatalogValidator interface {
	Validate(ctx context.Context, targetID string) error
}

// EventPublisher publishes activity events for accepted writes.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *feed.ActivityEvent) error
}

// Service implements the review write path.
type Service struct {
	store     Store
	guard     *Guard
	catalog   CatalogValidator
	publisher EventPublisher
	validate  *validator.Validate
}

// NewService creates the review service. The publisher may be nil in
// tests; accepted writes are then not announced on the bus.
func NewService(store Store, guard *Guard, catalog CatalogValidator, publisher EventPublisher) (*Service, error) {
	if store == nil {
		return nil, errors.New("record store required")
	}
	if guard == nil {
		return nil, errors.New("uniqueness guard required")
	}
	if catalog == nil {
		return nil, errors.New("catalog validator required")
	}

	return &Service{
		store:     store,
		guard:     guard,
		catalog:   catalog,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Create stores a new review for the actor. The sequence is: validate
// payload, confirm the target exists, check uniqueness via the guard,
// insert, confirm the cache, publish the event. A constraint violation
// at insert time is reported exactly like a guard-detected duplicate.
func (s *Service) Create(ctx context.Context, actorID string, req *CreateRequest) (*Review, error) {
	if actorID == "" {
		return nil, errors.New("actor id required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := s.catalog.Validate(ctx, req.TargetID); err != nil {
		if errors.Is(err, enrich.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("validate target: %w", err)
	}

	outcome, err := s.guard.CheckAndReserve(ctx, actorID, req.TargetID)
	if err != nil {
		return nil, err
	}
	if outcome.Duplicate {
		return nil, &DuplicateError{ExistingID: outcome.ExistingID}
	}

	now := time.Now().UTC()
	review := &Review{
		ID:             uuid.New().String(),
		ActorID:        actorID,
		TargetID:       req.TargetID,
		Rating:         req.Rating,
		Body:           req.Body,
		Tags:           req.Tags,
		SpoilerWarning: req.SpoilerWarning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Insert(ctx, review); err != nil {
		if errors.Is(err, ErrDuplicateReview) {
			// Lost the race past the guard. Fetch the winner so the
			// caller gets the existing id, and repair the cache.
			existing, gerr := s.store.GetByActorTarget(ctx, actorID, req.TargetID)
			if gerr != nil {
				return nil, &DuplicateError{}
			}
			s.guard.Confirm(actorID, req.TargetID, existing.ID)
			return nil, &DuplicateError{ExistingID: existing.ID}
		}
		return nil, err
	}

	s.guard.Confirm(actorID, req.TargetID, review.ID)
	s.publishEvent(ctx, feed.KindReviewCreated, review)

	return review, nil
}

// Get fetches a review by id.
func (s *Service) Get(ctx context.Context, id string) (*Review, error) {
	return s.store.GetByID(ctx, id)
}

// GetByActorTarget fetches the actor's review for a target, if any.
func (s *Service) GetByActorTarget(ctx context.Context, actorID, targetID string) (*Review, error) {
	return s.store.GetByActorTarget(ctx, actorID, targetID)
}

// Delete removes the actor's own review and frees the uniqueness slot.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	review, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if review.ActorID != actorID {
		return ErrNotOwner
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.guard.Release(review.ActorID, review.TargetID)
	s.publishEvent(ctx, feed.KindReviewDeleted, review)

	return nil
}

// HealthCheck verifies the record store responds.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publishEvent announces an accepted write. Publish failures do not
// fail the request: the write is durable, only the feed lags.
func (s *Service) publishEvent(ctx context.Context, kind string, review *Review) {
	if s.publisher == nil {
		return
	}

	event := feed.NewActivityEvent(kind, review.ActorID, review.TargetID)
	if kind == feed.KindReviewCreated {
		// Feed position follows the write time, not the publish time.
		event.Timestamp = review.CreatedAt
		event.Data.Body = review.Body
		event.Data.Rating = review.Rating
	}

	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		logging.Error().
			Err(err).
			Str("event_type", kind).
			Str("review_id", review.ID).
			Msg("Failed to publish review event")
	}
}
