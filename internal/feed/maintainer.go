// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/metrics"
)

// EntityResolver resolves the display fields of a catalog entity.
// Implementations must not fail feed maintenance: when the catalog is
// unreachable they return fallback values instead of an error.
type EntityResolver interface {
	Resolve(ctx context.Context, targetID string) (title, ownerName string)
}

// Maintainer applies activity events to the feed lists. Enrichment is
// resolved once at write time; items carry the resolved fields forever.
type Maintainer struct {
	store    *Store
	resolver EntityResolver
}

// NewMaintainer creates a feed maintainer.
func NewMaintainer(store *Store, resolver EntityResolver) (*Maintainer, error) {
	if store == nil {
		return nil, errors.New("feed store required")
	}
	if resolver == nil {
		return nil, errors.New("entity resolver required")
	}
	return &Maintainer{store: store, resolver: resolver}, nil
}

// Apply materializes the event into the feed lists. Kinds without feed
// effect and already-applied events return false without error.
func (m *Maintainer) Apply(ctx context.Context, event *ActivityEvent) (bool, error) {
	if event == nil {
		return false, errors.New("event required")
	}

	switch event.Kind {
	case KindPostCreated, KindReviewCreated:
	case KindReviewUpdated, KindReviewDeleted:
		// Items are immutable once appended; edits and removals of the
		// underlying entity leave the feed untouched.
		metrics.EventsSkipped.WithLabelValues("no_feed_effect").Inc()
		return false, nil
	default:
		metrics.EventsSkipped.WithLabelValues("unknown_kind").Inc()
		logging.Warn().
			Str("event_type", event.Kind).
			Msg("Unknown event kind, skipping")
		return false, nil
	}

	title, ownerName := m.resolver.Resolve(ctx, event.Data.TargetID)

	item := &Item{
		TargetID:             event.Data.TargetID,
		ActorID:              event.Data.ActorID,
		ActorName:            event.Data.ActorName,
		Kind:                 event.Kind,
		Timestamp:            event.Timestamp.UTC(),
		Title:                title,
		ReferencedEntityName: ownerName,
		Body:                 event.Data.Body,
		Rating:               event.Data.Rating,
	}

	applied, err := m.store.Push(ctx, item, event.ContentHash())
	if err != nil {
		return false, fmt.Errorf("apply %s event: %w", event.Kind, err)
	}
	if !applied {
		metrics.EventsSkipped.WithLabelValues("duplicate").Inc()
		logging.Debug().
			Str("event_type", event.Kind).
			Str("actor_id", event.Data.ActorID).
			Str("target_id", event.Data.TargetID).
			Msg("Event already applied, skipping")
		return false, nil
	}

	logging.Debug().
		Str("event_type", event.Kind).
		Str("actor_id", event.Data.ActorID).
		Str("target_id", event.Data.TargetID).
		Str("title", title).
		Msg("Feed item appended")
	return true, nil
}
