// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

// Package enrich resolves catalog entity display fields at feed write
// time. The catalog service is treated as untrusted for availability:
// lookups are rate limited, circuit broken, and cached, and feed
// maintenance falls back to placeholder values rather than failing.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when the catalog has no entity for the id.
var ErrNotFound = errors.New("catalog entity not found")

// Entity holds the display fields the feed denormalizes.
type Entity struct {
	Title     string `json:"title"`
	OwnerName string `json:"ownerName"`
}

// CatalogClient is a REST client for the catalog service.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCatalogClient creates a catalog API client.
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &CatalogClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetEntity fetches the display fields of a catalog entity.
func (c *CatalogClient) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	if entityID == "" {
		return nil, errors.New("entity id required")
	}

	endpoint := c.baseURL + "/catalogEntity/" + url.PathEscape(entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog entity request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return nil, fmt.Errorf("catalog entity returned status %d (failed to read body)", resp.StatusCode)
		}
		return nil, fmt.Errorf("catalog entity returned status %d: %s", resp.StatusCode, string(body))
	}

	var entity Entity
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return nil, fmt.Errorf("failed to decode catalog entity: %w", err)
	}

	return &entity, nil
}

// Ping verifies connectivity to the catalog service.
func (c *CatalogClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build catalog ping: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("catalog ping returned status %d", resp.StatusCode)
	}
	return nil
}
