// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package feed

import (
	"errors"
	"testing"
	"time"
)

func TestNewActivityEventDefaults(t *testing.T) {
	event := NewActivityEvent(KindPostCreated, "user-1", "book-1")

	if event.Kind != KindPostCreated {
		t.Errorf("kind = %q, want %q", event.Kind, KindPostCreated)
	}
	if event.Data.ActorID != "user-1" || event.Data.TargetID != "book-1" {
		t.Errorf("payload = %+v", event.Data)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if err := event.Validate(); err != nil {
		t.Errorf("valid event failed validation: %v", err)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ActivityEvent)
		field  string
	}{
		{"missing kind", func(e *ActivityEvent) { e.Kind = "" }, "event_type"},
		{"zero timestamp", func(e *ActivityEvent) { e.Timestamp = time.Time{} }, "timestamp"},
		{"missing actor", func(e *ActivityEvent) { e.Data.ActorID = "" }, "data.actorId"},
		{"missing target", func(e *ActivityEvent) { e.Data.TargetID = "" }, "data.targetId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewActivityEvent(KindReviewCreated, "user-1", "book-1")
			tt.mutate(event)

			err := event.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestTopicRouting(t *testing.T) {
	post := NewActivityEvent(KindPostCreated, "u", "b")
	if got := post.Topic(); got != TopicPosts {
		t.Errorf("post topic = %q, want %q", got, TopicPosts)
	}

	for _, kind := range []string{KindReviewCreated, KindReviewUpdated, KindReviewDeleted} {
		review := NewActivityEvent(kind, "u", "b")
		if got := review.Topic(); got != TopicReviews {
			t.Errorf("%s topic = %q, want %q", kind, got, TopicReviews)
		}
	}
}

func TestContentHashDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	a := &ActivityEvent{Kind: KindReviewCreated, Timestamp: ts,
		Data: EventPayload{ActorID: "user-1", TargetID: "book-1"}}
	b := &ActivityEvent{Kind: KindReviewCreated, Timestamp: ts,
		Data: EventPayload{ActorID: "user-1", TargetID: "book-1", ActorName: "Ada"}}

	if a.ContentHash() != b.ContentHash() {
		t.Error("hash should ignore display fields")
	}

	c := &ActivityEvent{Kind: KindReviewCreated, Timestamp: ts.Add(time.Nanosecond),
		Data: EventPayload{ActorID: "user-1", TargetID: "book-1"}}
	if a.ContentHash() == c.ContentHash() {
		t.Error("hash should change with timestamp")
	}

	d := &ActivityEvent{Kind: KindPostCreated, Timestamp: ts,
		Data: EventPayload{ActorID: "user-1", TargetID: "book-1"}}
	if a.ContentHash() == d.ContentHash() {
		t.Error("hash should change with kind")
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := &ActivityEvent{Kind: KindPostCreated, Timestamp: ts,
		Data: EventPayload{ActorID: "ab", TargetID: "c"}}
	b := &ActivityEvent{Kind: KindPostCreated, Timestamp: ts,
		Data: EventPayload{ActorID: "a", TargetID: "bc"}}

	if a.ContentHash() == b.ContentHash() {
		t.Error("field boundaries must be preserved in the hash")
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	s := NewSerializer()
	event := NewActivityEvent(KindReviewCreated, "user-1", "book-1")
	event.Data.ActorName = "Ada"
	event.Data.Rating = 4

	data, err := s.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Kind != event.Kind || decoded.Data.Rating != 4 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.ContentHash() != event.ContentHash() {
		t.Error("content hash must survive serialization")
	}
}

func TestSerializerRejectsInvalid(t *testing.T) {
	s := NewSerializer()
	event := NewActivityEvent(KindReviewCreated, "", "book-1")

	if _, err := s.Marshal(event); err == nil {
		t.Fatal("expected marshal of invalid event to fail")
	}
}
