// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package reviews

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// memStore is an in-memory Store for guard and service tests. It
// enforces the same (actor, target) uniqueness as the DuckDB store.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*Review
	byPair  map[string]*Review
	lookups int
	failing bool
}

func newMemStore() *memStore {
	return &memStore{
		byID:   make(map[string]*Review),
		byPair: make(map[string]*Review),
	}
}

func (m *memStore) pairKey(actorID, targetID string) string {
	return actorID + "\x00" + targetID
}

func (m *memStore) Insert(_ context.Context, review *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.pairKey(review.ActorID, review.TargetID)
	if _, exists := m.byPair[key]; exists {
		return ErrDuplicateReview
	}
	clone := *review
	m.byID[review.ID] = &clone
	m.byPair[key] = &clone
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.byID[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, ErrReviewNotFound
}

func (m *memStore) GetByActorTarget(_ context.Context, actorID, targetID string) (*Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	if m.failing {
		return nil, errors.New("store unavailable")
	}
	if r, ok := m.byPair[m.pairKey(actorID, targetID)]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, ErrReviewNotFound
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return ErrReviewNotFound
	}
	delete(m.byID, id)
	delete(m.byPair, m.pairKey(r.ActorID, r.TargetID))
	return nil
}

func (m *memStore) Ping(_ context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

func (m *memStore) storeLookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func newTestGuard(t *testing.T, store Store) (*Guard, *GuardCache) {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cache, err := NewGuardCache(db, DefaultCacheConfig())
	if err != nil {
		t.Fatalf("NewGuardCache: %v", err)
	}
	guard, err := NewGuard(cache, store)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return guard, cache
}

func TestCheckUniquePair(t *testing.T) {
	store := newMemStore()
	guard, _ := newTestGuard(t, store)

	outcome, err := guard.CheckAndReserve(context.Background(), "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if outcome.Duplicate {
		t.Error("fresh pair reported duplicate")
	}
}

func TestCheckDuplicateFromStore(t *testing.T) {
	store := newMemStore()
	existing := &Review{ID: "rev-1", ActorID: "user-1", TargetID: "book-1", Rating: 4}
	if err := store.Insert(context.Background(), existing); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	guard, _ := newTestGuard(t, store)

	outcome, err := guard.CheckAndReserve(context.Background(), "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !outcome.Duplicate || outcome.ExistingID != "rev-1" {
		t.Errorf("outcome = %+v", outcome)
	}

	// Second check answers from cache without a store lookup.
	before := store.storeLookups()
	outcome, err = guard.CheckAndReserve(context.Background(), "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !outcome.Duplicate {
		t.Error("cached duplicate lost")
	}
	if store.storeLookups() != before {
		t.Error("cached check hit the store")
	}
}

func TestAbsentEntryShortCircuitsStore(t *testing.T) {
	store := newMemStore()
	guard, _ := newTestGuard(t, store)
	ctx := context.Background()

	if _, err := guard.CheckAndReserve(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	before := store.storeLookups()

	if _, err := guard.CheckAndReserve(ctx, "user-1", "book-1"); err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if store.storeLookups() != before {
		t.Error("absent cache entry did not short-circuit the store lookup")
	}
}

func TestConfirmThenCheck(t *testing.T) {
	store := newMemStore()
	guard, _ := newTestGuard(t, store)
	ctx := context.Background()

	guard.Confirm("user-1", "book-1", "rev-9")

	outcome, err := guard.CheckAndReserve(ctx, "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !outcome.Duplicate || outcome.ExistingID != "rev-9" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	store := newMemStore()
	review := &Review{ID: "rev-1", ActorID: "user-1", TargetID: "book-1", Rating: 5}
	if err := store.Insert(context.Background(), review); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	guard, _ := newTestGuard(t, store)
	ctx := context.Background()

	outcome, err := guard.CheckAndReserve(ctx, "user-1", "book-1")
	if err != nil || !outcome.Duplicate {
		t.Fatalf("outcome = %+v, err = %v", outcome, err)
	}

	// Delete from the store, then release the cached state.
	if err := store.Delete(ctx, "rev-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	guard.Release("user-1", "book-1")

	outcome, err = guard.CheckAndReserve(ctx, "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if outcome.Duplicate {
		t.Error("released slot still reported duplicate")
	}
}

func TestConcurrentCreatesAllowExactlyOne(t *testing.T) {
	store := newMemStore()
	guard, _ := newTestGuard(t, store)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	inserted := make(chan string, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			outcome, err := guard.CheckAndReserve(ctx, "user-1", "book-1")
			if err != nil || outcome.Duplicate {
				return
			}

			// The guard answered unique; the store constraint decides
			// the race.
			review := &Review{
				ID:        "rev-" + string(rune('a'+n)),
				ActorID:   "user-1",
				TargetID:  "book-1",
				Rating:    3,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.Insert(ctx, review); err == nil {
				guard.Confirm(review.ActorID, review.TargetID, review.ID)
				inserted <- review.ID
			}
		}(i)
	}

	wg.Wait()
	close(inserted)

	var winners []string
	for id := range inserted {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("inserted %d reviews, want exactly 1: %v", len(winners), winners)
	}

	outcome, err := guard.CheckAndReserve(ctx, "user-1", "book-1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !outcome.Duplicate || outcome.ExistingID != winners[0] {
		t.Errorf("outcome = %+v, want duplicate of %s", outcome, winners[0])
	}
}

func TestCacheLookupStates(t *testing.T) {
	_, cache := newTestGuard(t, newMemStore())

	state, _, err := cache.Lookup("u", "t")
	if err != nil || state != CacheUnknown {
		t.Errorf("state = %v, err = %v", state, err)
	}

	if err := cache.SetAbsent("u", "t"); err != nil {
		t.Fatalf("SetAbsent: %v", err)
	}
	state, _, err = cache.Lookup("u", "t")
	if err != nil || state != CacheAbsent {
		t.Errorf("state = %v, err = %v", state, err)
	}

	// Present overrides and clears absent.
	if err := cache.SetPresent("u", "t", "rev-1"); err != nil {
		t.Fatalf("SetPresent: %v", err)
	}
	state, id, err := cache.Lookup("u", "t")
	if err != nil || state != CachePresent || id != "rev-1" {
		t.Errorf("state = %v, id = %q, err = %v", state, id, err)
	}

	if err := cache.Clear("u", "t"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	state, _, err = cache.Lookup("u", "t")
	if err != nil || state != CacheUnknown {
		t.Errorf("state = %v, err = %v", state, err)
	}
}

func TestGuardCacheRejectsBadTTLs(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer db.Close()

	_, err = NewGuardCache(db, CacheConfig{PresentTTL: time.Minute, AbsentTTL: time.Hour})
	if err == nil {
		t.Error("absent TTL above present TTL should be rejected")
	}
}
