// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package feed implements the materialized activity feeds: the event
// envelope consumed from the bus, the enriched items stored in feed
// lists, and the bounded list store that maintains them.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"
)

// Event kinds understood by the feed maintainer. Unknown kinds are
// acknowledged without effect so new producers can roll out first.
const (
	KindPostCreated   = "post.created"
	KindReviewCreated = "review.created"
	KindReviewUpdated = "review.updated"
	KindReviewDeleted = "review.deleted"
)

// Topic subjects on the activity stream.
const (
	TopicPosts   = "activity.posts"
	TopicReviews = "activity.reviews"
)

// ActivityEvent is the envelope published by write-path services.
// The payload carries kind-specific fields; only the identifiers and
// the fields the feed renders are modeled.
type ActivityEvent struct {
	Kind      string       `json:"event_type"`
	Timestamp time.Time    `json:"timestamp"`
	Data      EventPayload `json:"data"`
}

// EventPayload holds the event body. TargetID and ActorID identify the
// subject entity and the acting user; the remaining fields are optional
// per kind.
type EventPayload struct {
	TargetID string `json:"targetId"`
	ActorID  string `json:"actorId"`

	// ActorName is the display name supplied by the producer.
	ActorName string `json:"actorName,omitempty"`

	// Body is free text (post excerpt or review content).
	Body string `json:"body,omitempty"`

	// Rating is set on review events, 1 to 5.
	Rating int `json:"rating,omitempty"`
}

// NewActivityEvent creates an event with the current UTC timestamp.
func NewActivityEvent(kind, actorID, targetID string) *ActivityEvent {
	return &ActivityEvent{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data: EventPayload{
			TargetID: targetID,
			ActorID:  actorID,
		},
	}
}

// Validate checks required envelope fields.
func (e *ActivityEvent) Validate() error {
	if e.Kind == "" {
		return &ValidationError{Field: "event_type", Message: "required"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "required"}
	}
	if e.Data.ActorID == "" {
		return &ValidationError{Field: "data.actorId", Message: "required"}
	}
	if e.Data.TargetID == "" {
		return &ValidationError{Field: "data.targetId", Message: "required"}
	}
	return nil
}

// Topic returns the bus subject for this event kind.
func (e *ActivityEvent) Topic() string {
	if e.Kind == KindPostCreated {
		return TopicPosts
	}
	return TopicReviews
}

// ContentHash returns a deterministic identity for the event, used to
// suppress re-application of redelivered messages. Two deliveries of
// the same logical event always hash identically regardless of message
// UUIDs assigned by the transport.
func (e *ActivityEvent) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(e.Kind))
	h.Write([]byte{0})
	h.Write([]byte(e.Data.ActorID))
	h.Write([]byte{0})
	h.Write([]byte(e.Data.TargetID))
	h.Write([]byte{0})
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Serializer handles event encoding/decoding for bus messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts an event to JSON bytes after validating it.
func (s *Serializer) Marshal(event *ActivityEvent) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

// Unmarshal converts JSON bytes to an event.
func (s *Serializer) Unmarshal(data []byte) (*ActivityEvent, error) {
	var event ActivityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
