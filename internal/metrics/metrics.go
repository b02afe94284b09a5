// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package metrics provides Prometheus instrumentation for Shelfstream:
// event consumption, feed maintenance, enrichment lookups, uniqueness
// guard decisions, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event consumption metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_consumed_total",
			Help: "Total number of activity events consumed from the bus",
		},
		[]string{"kind"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_processed_total",
			Help: "Total number of activity events successfully applied to feeds",
		},
		[]string{"kind"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_skipped_total",
			Help: "Total number of events acknowledged without feed mutation",
		},
		[]string{"reason"}, // "duplicate", "unknown_kind", "no_feed_effect"
	)

	EventsParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_events_parse_failed_total",
			Help: "Total number of events rejected as malformed",
		},
	)

	EventsPoisoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_poisoned_total",
			Help: "Total number of events routed to the poison queue",
		},
		[]string{"category"}, // "validation", "storage", "unknown", ...
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"kind"},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_event_processing_duration_seconds",
			Help:    "Time spent applying a single event to the feeds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Feed store metrics
	FeedPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_pushes_total",
			Help: "Total number of items pushed into feed lists",
		},
		[]string{"list"}, // "global", "actor"
	)

	FeedEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_evictions_total",
			Help: "Total number of items trimmed from feed lists at capacity",
		},
		[]string{"list"},
	)

	FeedLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_length",
			Help: "Current number of items in a feed list",
		},
		[]string{"list"},
	)

	FeedTxnConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_txn_conflicts_total",
			Help: "Total number of feed store transaction conflicts retried",
		},
	)

	// Enrichment metrics
	EnrichmentLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_lookups_total",
			Help: "Total number of catalog enrichment lookups",
		},
		[]string{"outcome"}, // "hit", "cached", "fallback", "not_found"
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_lookup_duration_seconds",
			Help:    "Catalog lookup latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	EnrichmentBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrichment_breaker_open",
			Help: "1 when the catalog circuit breaker is open, 0 otherwise",
		},
	)

	// Uniqueness guard metrics
	GuardChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_checks_total",
			Help: "Total number of uniqueness checks by outcome",
		},
		[]string{"outcome"}, // "unique", "duplicate"
	)

	GuardCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_cache_hits_total",
			Help: "Total number of uniqueness checks resolved from cache",
		},
		[]string{"entry"}, // "present", "absent"
	)

	GuardStoreChecks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_store_checks_total",
			Help: "Total number of uniqueness checks that fell through to the record store",
		},
	)

	GuardCacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_cache_errors_total",
			Help: "Total number of cache failures degraded to store-direct checks",
		},
	)

	GuardConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_insert_conflicts_total",
			Help: "Total number of constraint violations caught at insert time",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordEventConsumed increments the consumed counter for an event kind.
func RecordEventConsumed(kind string) {
	EventsConsumed.WithLabelValues(kind).Inc()
}

// RecordEventProcessed increments the processed counter and observes duration.
func RecordEventProcessed(kind string, d time.Duration) {
	EventsProcessed.WithLabelValues(kind).Inc()
	EventProcessingDuration.Observe(d.Seconds())
}

// RecordEventSkipped increments the skipped counter for a reason.
func RecordEventSkipped(reason string) {
	EventsSkipped.WithLabelValues(reason).Inc()
}

// RecordGuardOutcome records a uniqueness check outcome.
func RecordGuardOutcome(duplicate bool) {
	if duplicate {
		GuardChecks.WithLabelValues("duplicate").Inc()
	} else {
		GuardChecks.WithLabelValues("unique").Inc()
	}
}

// RecordAPIRequest records an API request with its status and duration.
func RecordAPIRequest(method, endpoint string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
