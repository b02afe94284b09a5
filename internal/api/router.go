// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/metrics"
)

// Router assembles the HTTP surface.
type Router struct {
	cfg      *config.Config
	handlers *Handlers
	auth     *Authenticator
}

// NewRouter creates the API router.
func NewRouter(cfg *config.Config, handlers *Handlers) *Router {
	return &Router{
		cfg:      cfg,
		handlers: handlers,
		auth:     NewAuthenticator(cfg.Security.JWTSecret),
	}
}

// Setup configures all routes and middleware.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health probes: permissive rate limit for monitoring agents.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", router.handlers.HealthLive)
		r.Get("/ready", router.handlers.HealthReady)
	})

	// Data endpoints: authenticated and rate limited per client.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(
			router.cfg.Security.RateLimitReqs,
			router.cfg.Security.RateLimitWindow,
		))
		r.Use(metricsMiddleware)
		r.Use(router.auth.Middleware)

		r.Get("/activity-stream", router.handlers.ActivityStream)
		r.Get("/activity-stream/user", router.handlers.ActivityStreamUser)
		r.Get("/activity-stream/stats", router.handlers.ActivityStreamStats)

		r.Post("/reviews", router.handlers.CreateReview)
		r.Get("/reviews/{reviewID}", router.handlers.GetReview)
		r.Delete("/reviews/{reviewID}", router.handlers.DeleteReview)
		r.Get("/reviews/of/{actorID}/{targetID}", router.handlers.GetReviewByPair)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// metricsMiddleware records request counts and latency per route.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}

// NewServer builds an http.Server with the configured timeouts.
func (router *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:              router.cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       router.cfg.Server.Timeout,
		WriteTimeout:      router.cfg.Server.Timeout,
		IdleTimeout:       2 * router.cfg.Server.Timeout,
	}
}
