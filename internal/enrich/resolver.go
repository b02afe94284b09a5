// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/metrics"
)

// Fallback values used when the catalog cannot resolve an entity. Feed
// items are immutable, so a fallback is permanent for that item.
const (
	FallbackTitle = "Unknown Title"
	FallbackOwner = "Unknown Author"
)

// CatalogAPI is the subset of the catalog client the resolver needs.
type CatalogAPI interface {
	GetEntity(ctx context.Context, entityID string) (*Entity, error)
	Ping(ctx context.Context) error
}

// ResolverConfig tunes lookup protection and caching.
type ResolverConfig struct {
	// RatePerSecond bounds outbound catalog lookups. Fractional rates
	// are allowed; the burst is never below one request.
	RatePerSecond float64

	// CacheTTL is how long resolved entities are served from memory.
	CacheTTL time.Duration
}

// DefaultResolverConfig returns production resolver defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		RatePerSecond: 50,
		CacheTTL:      10 * time.Minute,
	}
}

type cachedEntity struct {
	entity   Entity
	notFound bool
	expires  time.Time
}

// Resolver resolves catalog display fields with a circuit breaker, a
// rate limiter, and a TTL cache in front of the catalog client.
//
// Resolve never fails: feed maintenance degrades to fallback values.
// Validate is strict and is used by write paths that must reject
// references to entities that do not exist.
type Resolver struct {
	client  CatalogAPI
	cb      *gobreaker.CircuitBreaker[*Entity]
	limiter *rate.Limiter
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cachedEntity
}

// NewResolver creates a resolver around a catalog client.
func NewResolver(client CatalogAPI, cfg ResolverConfig) (*Resolver, error) {
	if client == nil {
		return nil, errors.New("catalog client required")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultResolverConfig().RatePerSecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultResolverConfig().CacheTTL
	}

	cb := gobreaker.NewCircuitBreaker[*Entity](gobreaker.Settings{
		Name:        "catalog-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		// Opens when failure rate >= 60% with minimum 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		// A missing entity is an answer, not a catalog failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			if to == gobreaker.StateOpen {
				metrics.EnrichmentBreakerOpen.Set(1)
			} else {
				metrics.EnrichmentBreakerOpen.Set(0)
			}
		},
	})

	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Resolver{
		client:  client,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		ttl:     cfg.CacheTTL,
		cache:   make(map[string]cachedEntity),
	}, nil
}

// Resolve returns the entity's display fields, serving from cache when
// fresh and degrading to fallback values on any lookup failure.
func (r *Resolver) Resolve(ctx context.Context, targetID string) (string, string) {
	start := time.Now()
	defer func() {
		metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	}()

	if entry, ok := r.cached(targetID); ok {
		metrics.EnrichmentLookups.WithLabelValues("cached").Inc()
		if entry.notFound {
			return FallbackTitle, FallbackOwner
		}
		return entry.entity.Title, entry.entity.OwnerName
	}

	entity, err := r.lookup(ctx, targetID)
	switch {
	case err == nil:
		metrics.EnrichmentLookups.WithLabelValues("hit").Inc()
		r.store(targetID, *entity, false)
		return entity.Title, entity.OwnerName

	case errors.Is(err, ErrNotFound):
		metrics.EnrichmentLookups.WithLabelValues("not_found").Inc()
		// Cache the miss so repeated events for a deleted entity do
		// not hammer the catalog. The entry keeps its not-found state
		// so Validate never mistakes it for an existing entity.
		r.store(targetID, Entity{}, true)
		return FallbackTitle, FallbackOwner

	default:
		metrics.EnrichmentLookups.WithLabelValues("fallback").Inc()
		logging.Warn().
			Err(err).
			Str("target_id", targetID).
			Msg("Catalog lookup failed, using fallback enrichment")
		return FallbackTitle, FallbackOwner
	}
}

// Validate checks that the entity exists. Returns ErrNotFound when the
// catalog answers 404 and a transient error on any other failure.
func (r *Resolver) Validate(ctx context.Context, targetID string) error {
	if entry, ok := r.cached(targetID); ok {
		if entry.notFound {
			return ErrNotFound
		}
		return nil
	}

	entity, err := r.lookup(ctx, targetID)
	if err != nil {
		return err
	}
	r.store(targetID, *entity, false)
	return nil
}

// lookup performs a rate-limited, circuit-broken catalog call.
func (r *Resolver) lookup(ctx context.Context, targetID string) (*Entity, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return r.cb.Execute(func() (*Entity, error) {
		return r.client.GetEntity(ctx, targetID)
	})
}

func (r *Resolver) cached(targetID string) (cachedEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[targetID]
	if !ok || time.Now().After(entry.expires) {
		return cachedEntity{}, false
	}
	return entry, true
}

func (r *Resolver) store(targetID string, entity Entity, notFound bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Opportunistic cleanup keeps the map bounded without a sweeper.
	if len(r.cache) > 4096 {
		now := time.Now()
		for id, entry := range r.cache {
			if now.After(entry.expires) {
				delete(r.cache, id)
			}
		}
	}

	r.cache[targetID] = cachedEntity{
		entity:   entity,
		notFound: notFound,
		expires:  time.Now().Add(r.ttl),
	}
}

// HealthCheck verifies connectivity to the catalog service.
func (r *Resolver) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
