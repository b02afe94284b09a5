// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package consumer

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/shelfstream/shelfstream/internal/feed"
	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/metrics"
)

// HandlerStats holds processing counters for the activity handler.
type HandlerStats struct {
	Received  int64
	Applied   int64
	Skipped   int64
	Failed    int64
	Malformed int64
}

// ActivityHandler consumes activity events and applies them to the
// feeds. Malformed payloads fail permanently and are routed to the
// poison topic; storage failures are retryable.
type ActivityHandler struct {
	maintainer *feed.Maintainer
	serializer *feed.Serializer

	received  atomic.Int64
	applied   atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64
}

// NewActivityHandler creates a handler bound to a feed maintainer.
func NewActivityHandler(maintainer *feed.Maintainer) (*ActivityHandler, error) {
	if maintainer == nil {
		return nil, errors.New("feed maintainer required")
	}
	return &ActivityHandler{
		maintainer: maintainer,
		serializer: feed.NewSerializer(),
	}, nil
}

// Handle implements message.NoPublishHandlerFunc for router registration.
func (h *ActivityHandler) Handle(msg *message.Message) error {
	start := time.Now()
	h.received.Add(1)

	event, err := h.serializer.Unmarshal(msg.Payload)
	if err != nil {
		h.malformed.Add(1)
		metrics.EventsParseFailed.Inc()
		logging.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Failed to parse activity event")
		return NewPermanentError("malformed activity event", err)
	}

	if err := event.Validate(); err != nil {
		h.malformed.Add(1)
		metrics.EventsParseFailed.Inc()
		logging.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Str("event_type", event.Kind).
			Msg("Invalid activity event")
		return NewPermanentError("invalid activity event", err)
	}

	metrics.RecordEventConsumed(event.Kind)

	applied, err := h.maintainer.Apply(msg.Context(), event)
	if err != nil {
		h.failed.Add(1)
		logging.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Str("event_type", event.Kind).
			Str("actor_id", event.Data.ActorID).
			Msg("Failed to apply activity event")
		return NewRetryableError("apply activity event", err)
	}

	if applied {
		h.applied.Add(1)
	} else {
		h.skipped.Add(1)
	}
	metrics.RecordEventProcessed(event.Kind, time.Since(start))
	return nil
}

// Stats returns a snapshot of processing counters.
func (h *ActivityHandler) Stats() HandlerStats {
	return HandlerStats{
		Received:  h.received.Load(),
		Applied:   h.applied.Load(),
		Skipped:   h.skipped.Load(),
		Failed:    h.failed.Load(),
		Malformed: h.malformed.Load(),
	}
}
