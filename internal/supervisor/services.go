// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/shelfstream/shelfstream/internal/logging"
)

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService wraps an HTTP server as a supervised service, translating
// the blocking ListenAndServe pattern into suture's context-aware Serve.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService creates an HTTP server service wrapper.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is treated as a
// clean stop.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is canceled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// Runner is a blocking run loop with an explicit stop, matching
// *consumer.Router.
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterService wraps the event router as a supervised service.
type RouterService struct {
	runner Runner
}

// NewRouterService creates a router service wrapper.
func NewRouterService(runner Runner) *RouterService {
	return &RouterService{runner: runner}
}

// Serve implements suture.Service. Run blocks until the context is
// canceled or the router fails; a clean stop is not restarted.
func (r *RouterService) Serve(ctx context.Context) error {
	err := r.runner.Run(ctx)
	if ctx.Err() != nil {
		if cerr := r.runner.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Router close after cancel failed")
		}
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("event router failed: %w", err)
	}
	return suture.ErrDoNotRestart
}

func (r *RouterService) String() string { return "event-router" }

// BusServer is a running message bus with a graceful stop, matching
// *consumer.EmbeddedServer.
type BusServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BusService supervises an already-started embedded bus server. The
// server starts in its constructor; this wrapper watches its health
// and shuts it down when the tree stops.
type BusService struct {
	server          BusServer
	shutdownTimeout time.Duration
}

// NewBusService creates a bus service wrapper.
func NewBusService(server BusServer, shutdownTimeout time.Duration) *BusService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BusService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. An externally stopped server is a
// failure and triggers a restart of the messaging layer.
func (b *BusService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
			defer cancel()
			if err := b.server.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("Bus server shutdown failed")
			}
			return ctx.Err()

		case <-ticker.C:
			if !b.server.IsRunning() {
				return errors.New("bus server stopped unexpectedly")
			}
		}
	}
}

func (b *BusService) String() string { return "bus-server" }
