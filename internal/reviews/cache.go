// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package reviews

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// CacheState is what the guard cache knows about an (actor, target) pair.
type CacheState int

const (
	// CacheUnknown means no fresh cache entry exists; consult the store.
	CacheUnknown CacheState = iota
	// CachePresent means a review is known to exist.
	CachePresent
	// CacheAbsent means no review existed within the absent-entry TTL.
	CacheAbsent
)

const (
	presentSuffix = ":present"
	absentSuffix  = ":absent"
	dedupPrefix   = "dedup:"
)

// CacheConfig holds guard cache entry lifetimes. Absent entries are
// short-lived so a cache wiped out of band converges quickly; present
// entries are corrected by the store constraint if ever stale.
type CacheConfig struct {
	PresentTTL time.Duration
	AbsentTTL  time.Duration
}

// DefaultCacheConfig returns production guard cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		PresentTTL: time.Hour,
		AbsentTTL:  5 * time.Minute,
	}
}

// GuardCache stores present/absent markers for (actor, target) pairs in
// Badger. Present entries carry the existing review id as their value.
type GuardCache struct {
	db     *badger.DB
	config CacheConfig
}

// NewGuardCache creates a guard cache on an open Badger instance.
func NewGuardCache(db *badger.DB, cfg CacheConfig) (*GuardCache, error) {
	if db == nil {
		return nil, errors.New("badger db required")
	}
	if cfg.PresentTTL <= 0 {
		cfg.PresentTTL = DefaultCacheConfig().PresentTTL
	}
	if cfg.AbsentTTL <= 0 {
		cfg.AbsentTTL = DefaultCacheConfig().AbsentTTL
	}
	if cfg.AbsentTTL > cfg.PresentTTL {
		return nil, errors.New("absent TTL must not exceed present TTL")
	}
	return &GuardCache{db: db, config: cfg}, nil
}

func pairKey(actorID, targetID, suffix string) []byte {
	return []byte(dedupPrefix + actorID + ":" + targetID + suffix)
}

// Lookup returns the cached state for the pair. When the state is
// CachePresent, reviewID holds the id of the existing review.
func (c *GuardCache) Lookup(actorID, targetID string) (CacheState, string, error) {
	var state = CacheUnknown
	var reviewID string

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(actorID, targetID, presentSuffix))
		if err == nil {
			return item.Value(func(val []byte) error {
				state = CachePresent
				reviewID = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		_, err = txn.Get(pairKey(actorID, targetID, absentSuffix))
		if err == nil {
			state = CacheAbsent
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return CacheUnknown, "", err
	}
	return state, reviewID, nil
}

// SetPresent records that a review exists for the pair and drops any
// absent marker in the same transaction.
func (c *GuardCache) SetPresent(actorID, targetID, reviewID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(
			pairKey(actorID, targetID, presentSuffix),
			[]byte(reviewID),
		).WithTTL(c.config.PresentTTL)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		err := txn.Delete(pairKey(actorID, targetID, absentSuffix))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// SetAbsent records that no review exists for the pair.
func (c *GuardCache) SetAbsent(actorID, targetID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(
			pairKey(actorID, targetID, absentSuffix),
			[]byte{1},
		).WithTTL(c.config.AbsentTTL)
		return txn.SetEntry(entry)
	})
}

// Clear drops both markers for the pair. Used after deletes so the next
// check consults the store.
func (c *GuardCache) Clear(actorID, targetID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for _, suffix := range []string{presentSuffix, absentSuffix} {
			err := txn.Delete(pairKey(actorID, targetID, suffix))
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}
