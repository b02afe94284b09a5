// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package feed

import "time"

// Item is a fully denormalized feed entry. Items are immutable once
// appended: later edits to the underlying entity do not rewrite them.
// Readers render items without further lookups.
type Item struct {
	TargetID  string    `json:"targetId"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Title is the resolved display label of the target entity.
	Title string `json:"title,omitempty"`

	// ReferencedEntityName is the resolved owner/author name of the
	// target entity.
	ReferencedEntityName string `json:"referencedEntityName,omitempty"`

	// Body is the post excerpt or review content, when present.
	Body string `json:"body,omitempty"`

	// Rating is set on review items, 1 to 5.
	Rating int `json:"rating,omitempty"`
}
