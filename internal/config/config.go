// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package config provides layered configuration loading for Shelfstream:
// built-in defaults, an optional YAML file, and environment variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	NATS     NATSConfig     `koanf:"nats"`
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	Feed     FeedConfig     `koanf:"feed"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Security SecurityConfig `koanf:"security"`
	API      APIConfig      `koanf:"api"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig holds event bus settings.
type NATSConfig struct {
	// URL is the NATS server connection URL. Ignored when EmbeddedServer
	// is true; the embedded server's client URL is used instead.
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process NATS JetStream server.
	EmbeddedServer bool `koanf:"embedded_server"`

	// Host and Port bind the embedded server.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// MaxMemory and MaxStore bound JetStream resource usage in bytes.
	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	// StreamRetentionDays is how long the stream keeps events.
	StreamRetentionDays int `koanf:"stream_retention_days"`

	// DurableName and QueueGroup identify the feed consumer.
	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	// SubscribersCount is the number of concurrent message processors.
	// Keep at 1 for strict in-order application; higher values improve
	// throughput at the cost of ordering across concurrent events.
	SubscribersCount int `koanf:"subscribers_count"`

	// Router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterRetryMaxInterval     time.Duration `koanf:"router_retry_max_interval"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// CacheConfig holds the Badger cache store settings.
type CacheConfig struct {
	// Dir is the on-disk location of the cache store.
	Dir string `koanf:"dir"`

	// InMemory runs the cache store without persistence. Used in tests
	// and ephemeral deployments.
	InMemory bool `koanf:"in_memory"`
}

// DatabaseConfig holds the uniqueness record store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `koanf:"path"`
}

// FeedConfig holds materialized feed settings.
type FeedConfig struct {
	// GlobalCap is the maximum number of items in the global feed.
	GlobalCap int `koanf:"global_cap"`

	// ActorCap is the maximum number of items in each per-actor feed.
	// Must be smaller than GlobalCap.
	ActorCap int `koanf:"actor_cap"`

	// SeenTTL is how long applied-event markers are kept for
	// replay suppression.
	SeenTTL time.Duration `koanf:"seen_ttl"`
}

// DedupConfig holds uniqueness guard cache settings.
type DedupConfig struct {
	// PresentTTL is the lifetime of present entries (known review ids).
	PresentTTL time.Duration `koanf:"present_ttl"`

	// AbsentTTL is the lifetime of absent entries. Kept short so a
	// record created by another instance becomes visible quickly.
	AbsentTTL time.Duration `koanf:"absent_ttl"`
}

// CatalogConfig holds the enrichment collaborator settings.
type CatalogConfig struct {
	// URL is the base URL of the catalog service.
	URL string `koanf:"url"`

	// Timeout bounds a single lookup request.
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond limits outbound catalog lookups. Unset falls back
	// to the resolver default.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// CacheTTL is the lifetime of cached lookup results.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// SecurityConfig holds authentication and rate limit settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies bearer tokens (HS256).
	JWTSecret string `koanf:"jwt_secret"`

	// RateLimitReqs and RateLimitWindow bound requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed origins.
	CORSOrigins []string `koanf:"cors_origins"`
}

// APIConfig holds pagination settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Feed.GlobalCap <= 0 {
		return errors.New("feed global cap must be positive")
	}
	if c.Feed.ActorCap <= 0 {
		return errors.New("feed actor cap must be positive")
	}
	if c.Feed.ActorCap >= c.Feed.GlobalCap {
		return fmt.Errorf("feed actor cap %d must be smaller than global cap %d",
			c.Feed.ActorCap, c.Feed.GlobalCap)
	}
	if c.Dedup.PresentTTL <= 0 || c.Dedup.AbsentTTL <= 0 {
		return errors.New("dedup TTLs must be positive")
	}
	if c.Dedup.AbsentTTL > c.Dedup.PresentTTL {
		return fmt.Errorf("dedup absent TTL %s must not exceed present TTL %s",
			c.Dedup.AbsentTTL, c.Dedup.PresentTTL)
	}
	if c.Catalog.URL == "" {
		return errors.New("catalog URL is required")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security jwt_secret is required")
	}
	if c.API.DefaultPageSize <= 0 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return errors.New("api page sizes are inconsistent")
	}
	return nil
}
