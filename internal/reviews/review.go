// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package reviews implements the review write path: the durable record
// store with its uniqueness constraint, the cache-backed guard that
// answers most duplicate checks without touching the store, and the
// service tying them to catalog validation and event publication.
//
// The invariant is at most one review per (actor, target) pair. The
// cache is an optimization layer only; the store's unique constraint is
// the source of truth and catches every race the cache misses.
package reviews

import (
	"errors"
	"time"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrReviewNotFound is returned when no review matches the lookup.
	ErrReviewNotFound = errors.New("review not found")

	// ErrTargetNotFound is returned when the reviewed entity does not
	// exist in the catalog.
	ErrTargetNotFound = errors.New("catalog entity not found")

	// ErrNotOwner is returned when an actor tries to delete another
	// actor's review.
	ErrNotOwner = errors.New("review belongs to another user")

	// ErrInvalidRequest wraps payload validation failures.
	ErrInvalidRequest = errors.New("invalid review request")
)

// DuplicateError reports a rejected duplicate review along with the id
// of the review that already holds the (actor, target) slot.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return "review already exists for this user and entity"
}

// IsDuplicate reports whether err is a duplicate rejection and returns
// the existing review id when it is.
func IsDuplicate(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.ExistingID, true
	}
	return "", false
}

// Review is a stored book review.
type Review struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actorId"`
	TargetID       string    `json:"targetId"`
	Rating         int       `json:"rating"`
	Body           string    `json:"body,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	SpoilerWarning bool      `json:"spoilerWarning"`
	HelpfulCount   int       `json:"helpfulCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateRequest is the payload for creating a review. The actor comes
// from the authenticated request, never from the body.
type CreateRequest struct {
	TargetID       string   `json:"targetId" validate:"required,max=128"`
	Rating         int      `json:"rating" validate:"required,min=1,max=5"`
	Body           string   `json:"body" validate:"max=10000"`
	Tags           []string `json:"tags" validate:"max=10,dive,max=32"`
	SpoilerWarning bool     `json:"spoilerWarning"`
}
