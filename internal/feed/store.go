// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/shelfstream/shelfstream/internal/metrics"
)

// Key layout in the cache store.
const (
	keyGlobal      = "feed:global"
	keyActorPrefix = "feed:actor:"
	keySeenPrefix  = "feed:seen:"
)

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("feed store is closed")

// StoreConfig holds feed list bounds and replay suppression settings.
type StoreConfig struct {
	// GlobalCap bounds the global feed list.
	GlobalCap int

	// ActorCap bounds each per-actor feed list. Must be smaller than
	// GlobalCap.
	ActorCap int

	// SeenTTL is how long applied-event markers are retained. Must
	// exceed the bus redelivery window.
	SeenTTL time.Duration

	// MaxTxnRetries bounds conflict retries on concurrent writers.
	MaxTxnRetries int
}

// DefaultStoreConfig returns production defaults for the feed store.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		GlobalCap:     1000,
		ActorCap:      100,
		SeenTTL:       24 * time.Hour,
		MaxTxnRetries: 10,
	}
}

// Store maintains the bounded, newest-first feed lists in Badger.
// Each list is stored as a single JSON value so that push, trim, and
// the applied-event marker commit atomically in one transaction.
type Store struct {
	db     *badger.DB
	config StoreConfig
}

// OpenBadger opens the Badger cache store at dir. When inMemory is
// true the store holds no files and is discarded on close.
func OpenBadger(dir string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithInMemory(inMemory).
		WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return db, nil
}

// NewStore creates a feed store on an open Badger instance.
func NewStore(db *badger.DB, cfg StoreConfig) (*Store, error) {
	if db == nil {
		return nil, errors.New("badger db required")
	}
	if cfg.GlobalCap <= 0 || cfg.ActorCap <= 0 {
		return nil, errors.New("feed caps must be positive")
	}
	if cfg.ActorCap >= cfg.GlobalCap {
		return nil, fmt.Errorf("actor cap %d must be smaller than global cap %d",
			cfg.ActorCap, cfg.GlobalCap)
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = DefaultStoreConfig().SeenTTL
	}
	if cfg.MaxTxnRetries <= 0 {
		cfg.MaxTxnRetries = DefaultStoreConfig().MaxTxnRetries
	}

	return &Store{db: db, config: cfg}, nil
}

// Push inserts the item into the global feed and the actor's feed,
// trimming both to their caps, and records the event hash so replays
// of the same event are suppressed. The whole mutation is a single
// serializable transaction; conflicting concurrent pushes are retried.
//
// Returns false when the hash has already been applied.
func (s *Store) Push(ctx context.Context, item *Item, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if item == nil || hash == "" {
		return false, errors.New("item and hash required")
	}

	seenKey := []byte(keySeenPrefix + hash)
	actorKey := []byte(keyActorPrefix + item.ActorID)

	var applied bool
	for attempt := 0; attempt < s.config.MaxTxnRetries; attempt++ {
		applied = false
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(seenKey)
			if err == nil {
				return nil // Already applied; commit nothing new.
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := s.insertLocked(txn, []byte(keyGlobal), item, s.config.GlobalCap, "global"); err != nil {
				return err
			}
			if err := s.insertLocked(txn, actorKey, item, s.config.ActorCap, "actor"); err != nil {
				return err
			}

			entry := badger.NewEntry(seenKey, []byte{1}).WithTTL(s.config.SeenTTL)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}

			applied = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			metrics.FeedTxnConflicts.Inc()
			continue
		}
		if err != nil {
			return false, fmt.Errorf("push feed item: %w", err)
		}
		return applied, nil
	}

	return false, fmt.Errorf("push feed item: %w", badger.ErrConflict)
}

// insertLocked reads a list, inserts the item in timestamp order, trims
// to the cap, and writes it back. Must run inside an update transaction.
func (s *Store) insertLocked(txn *badger.Txn, key []byte, item *Item, maxLen int, label string) error {
	items, err := readList(txn, key)
	if err != nil {
		return err
	}

	items = insertNewestFirst(items, item)
	if len(items) > maxLen {
		metrics.FeedEvictions.WithLabelValues(label).Add(float64(len(items) - maxLen))
		items = items[:maxLen]
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := txn.Set(key, data); err != nil {
		return err
	}

	metrics.FeedPushes.WithLabelValues(label).Inc()
	if label == "global" {
		metrics.FeedLength.WithLabelValues("global").Set(float64(len(items)))
	}
	return nil
}

// insertNewestFirst places the item before the first entry with a
// strictly older timestamp. Entries sharing a timestamp keep their
// insertion order, so the new item lands after its equals.
func insertNewestFirst(items []Item, item *Item) []Item {
	idx := len(items)
	for i := range items {
		if items[i].Timestamp.Before(item.Timestamp) {
			idx = i
			break
		}
	}

	items = append(items, Item{})
	copy(items[idx+1:], items[idx:])
	items[idx] = *item
	return items
}

// readList loads and decodes a feed list. A missing key is an empty list.
func readList(txn *badger.Txn, key []byte) ([]Item, error) {
	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []Item
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &items)
	})
	return items, err
}

// Global returns a page of the global feed and the feed's total length.
// Offsets past the end yield an empty page.
func (s *Store) Global(ctx context.Context, limit, offset int) ([]Item, int, error) {
	return s.page(ctx, []byte(keyGlobal), limit, offset)
}

// ForActor returns a page of the actor's feed and its total length.
func (s *Store) ForActor(ctx context.Context, actorID string, limit, offset int) ([]Item, int, error) {
	if actorID == "" {
		return nil, 0, errors.New("actor id required")
	}
	return s.page(ctx, []byte(keyActorPrefix+actorID), limit, offset)
}

func (s *Store) page(ctx context.Context, key []byte, limit, offset int) ([]Item, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if limit < 0 || offset < 0 {
		return nil, 0, errors.New("limit and offset must be non-negative")
	}

	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		items, err = readList(txn, key)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("read feed list: %w", err)
	}

	total := len(items)
	if offset >= total {
		return []Item{}, total, nil
	}
	end := offset + limit
	if limit == 0 || end > total {
		end = total
	}

	page := make([]Item, end-offset)
	copy(page, items[offset:end])
	return page, total, nil
}

// Stats summarizes feed list state for the stats endpoint.
type Stats struct {
	GlobalItems int `json:"global_items"`
	ActorFeeds  int `json:"actor_feeds"`
	ActorItems  int `json:"actor_items"`
}

// Stats counts the global list and all per-actor lists.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		global, err := readList(txn, []byte(keyGlobal))
		if err != nil {
			return err
		}
		stats.GlobalItems = len(global)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyActorPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			stats.ActorFeeds++
			var items []Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &items)
			})
			if err != nil {
				return err
			}
			stats.ActorItems += len(items)
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("feed stats: %w", err)
	}
	return stats, nil
}

// HealthCheck verifies the store responds to reads.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, _, err := s.Global(ctx, 1, 0)
	return err
}
