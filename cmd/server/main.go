// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Command server runs the Shelfstream service: the activity-event
// consumer maintaining the materialized feeds, the review write path
// with its uniqueness guard, and the HTTP API, all under one
// supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natsgo "github.com/nats-io/nats.go"

	"github.com/shelfstream/shelfstream/internal/api"
	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/consumer"
	"github.com/shelfstream/shelfstream/internal/enrich"
	"github.com/shelfstream/shelfstream/internal/feed"
	"github.com/shelfstream/shelfstream/internal/logging"
	"github.com/shelfstream/shelfstream/internal/reviews"
	"github.com/shelfstream/shelfstream/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Shelfstream failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Msg("Starting Shelfstream")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores. Badger backs both the feed lists and the dedup guard
	// cache; DuckDB holds the review records and their unique constraint.
	cacheDB, err := feed.OpenBadger(cfg.Cache.Dir, cfg.Cache.InMemory)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer cacheDB.Close()

	feedStore, err := feed.NewStore(cacheDB, feed.StoreConfig{
		GlobalCap: cfg.Feed.GlobalCap,
		ActorCap:  cfg.Feed.ActorCap,
		SeenTTL:   cfg.Feed.SeenTTL,
	})
	if err != nil {
		return fmt.Errorf("create feed store: %w", err)
	}

	reviewStore, err := reviews.OpenDuckDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open review store: %w", err)
	}
	defer reviewStore.Close()

	// Event bus. The embedded server gives a self-contained JetStream
	// instance; an external URL is used when it is disabled.
	natsURL := cfg.NATS.URL
	var busServer *consumer.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		serverCfg := consumer.ServerConfigFrom(&cfg.NATS)
		busServer, err = consumer.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return fmt.Errorf("start embedded NATS server: %w", err)
		}
		natsURL = busServer.ClientURL()
	}

	nc, err := natsgo.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	streamCfg := consumer.StreamConfigFrom(&cfg.NATS)
	streamMgr, err := consumer.NewStreamManager(nc, &streamCfg)
	if err != nil {
		return fmt.Errorf("create stream manager: %w", err)
	}
	if _, err := streamMgr.EnsureStream(ctx); err != nil {
		return fmt.Errorf("ensure activity stream: %w", err)
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := consumer.NewPublisher(consumer.DefaultPublisherConfig(natsURL), wmLogger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer publisher.Close()

	subscriberCfg := consumer.SubscriberConfigFrom(&cfg.NATS, natsURL)
	subscriber, err := consumer.NewSubscriber(&subscriberCfg, wmLogger)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	defer subscriber.Close()

	// Enrichment. One resolver serves both the feed maintainer
	// (display fields) and the review service (target existence).
	catalogClient := enrich.NewCatalogClient(cfg.Catalog.URL, cfg.Catalog.Timeout)
	resolver, err := enrich.NewResolver(catalogClient, enrich.ResolverConfig{
		RatePerSecond: cfg.Catalog.RatePerSecond,
		CacheTTL:      cfg.Catalog.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("create catalog resolver: %w", err)
	}

	maintainer, err := feed.NewMaintainer(feedStore, resolver)
	if err != nil {
		return fmt.Errorf("create feed maintainer: %w", err)
	}
	activityHandler, err := consumer.NewActivityHandler(maintainer)
	if err != nil {
		return fmt.Errorf("create activity handler: %w", err)
	}

	routerCfg := consumer.RouterConfigFrom(&cfg.NATS)
	router, err := consumer.NewRouter(&routerCfg, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	router.AddConsumerHandler("feed-posts", feed.TopicPosts,
		subscriber.WatermillSubscriber(), activityHandler.Handle)
	router.AddConsumerHandler("feed-reviews", feed.TopicReviews,
		subscriber.WatermillSubscriber(), activityHandler.Handle)

	// Review write path.
	guardCache, err := reviews.NewGuardCache(cacheDB, reviews.CacheConfig{
		PresentTTL: cfg.Dedup.PresentTTL,
		AbsentTTL:  cfg.Dedup.AbsentTTL,
	})
	if err != nil {
		return fmt.Errorf("create guard cache: %w", err)
	}
	guard, err := reviews.NewGuard(guardCache, reviewStore)
	if err != nil {
		return fmt.Errorf("create uniqueness guard: %w", err)
	}
	reviewService, err := reviews.NewService(reviewStore, guard, resolver, publisher)
	if err != nil {
		return fmt.Errorf("create review service: %w", err)
	}

	// HTTP API.
	handlers := api.NewHandlers(cfg, feedStore, reviewService, router)
	httpServer := api.NewRouter(cfg, handlers).NewServer()

	// Supervision. The messaging layer restarts independently of the
	// API layer.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if busServer != nil {
		tree.AddMessagingService(supervisor.NewBusService(busServer, cfg.NATS.RouterCloseTimeout))
	}
	tree.AddMessagingService(supervisor.NewRouterService(router))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.Timeout))

	logging.Info().Msg("Shelfstream started")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logging.Info().Msg("Shelfstream stopped")
	return nil
}
