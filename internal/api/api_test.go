// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/enrich"
	"github.com/shelfstream/shelfstream/internal/feed"
	"github.com/shelfstream/shelfstream/internal/reviews"
)

// fakeReviewStore implements reviews.Store in memory with the same
// (actor, target) uniqueness the DuckDB store enforces.
type fakeReviewStore struct {
	mu     sync.Mutex
	byID   map[string]*reviews.Review
	byPair map[string]*reviews.Review
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		byID:   make(map[string]*reviews.Review),
		byPair: make(map[string]*reviews.Review),
	}
}

func pairKey(actorID, targetID string) string {
	return actorID + "\x00" + targetID
}

func (f *fakeReviewStore) Insert(_ context.Context, review *reviews.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey(review.ActorID, review.TargetID)
	if _, exists := f.byPair[key]; exists {
		return reviews.ErrDuplicateReview
	}
	clone := *review
	f.byID[review.ID] = &clone
	f.byPair[key] = &clone
	return nil
}

func (f *fakeReviewStore) GetByID(_ context.Context, id string) (*reviews.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.byID[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, reviews.ErrReviewNotFound
}

func (f *fakeReviewStore) GetByActorTarget(_ context.Context, actorID, targetID string) (*reviews.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.byPair[pairKey(actorID, targetID)]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, reviews.ErrReviewNotFound
}

func (f *fakeReviewStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.byID[id]
	if !ok {
		return reviews.ErrReviewNotFound
	}
	delete(f.byID, id)
	delete(f.byPair, pairKey(r.ActorID, r.TargetID))
	return nil
}

func (f *fakeReviewStore) Ping(_ context.Context) error { return nil }
func (f *fakeReviewStore) Close() error                 { return nil }

type fakeCatalog struct {
	missing map[string]bool
}

func (f *fakeCatalog) Validate(_ context.Context, targetID string) error {
	if f.missing[targetID] {
		return enrich.ErrNotFound
	}
	return nil
}

type testAPI struct {
	server *httptest.Server
	auth   *Authenticator
	feeds  *feed.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret",
			RateLimitReqs:   10000,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		API: config.APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
	}

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	feeds, err := feed.NewStore(db, feed.DefaultStoreConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	cache, err := reviews.NewGuardCache(db, reviews.DefaultCacheConfig())
	if err != nil {
		t.Fatalf("NewGuardCache: %v", err)
	}

	store := newFakeReviewStore()
	guard, err := reviews.NewGuard(cache, store)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	catalog := &fakeCatalog{missing: map[string]bool{"ghost": true}}
	svc, err := reviews.NewService(store, guard, catalog, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	router := NewRouter(cfg, NewHandlers(cfg, feeds, svc, nil))
	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return &testAPI{
		server: server,
		auth:   NewAuthenticator(cfg.Security.JWTSecret),
		feeds:  feeds,
	}
}

func (a *testAPI) request(t *testing.T, method, path, actorID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actorID != "" {
		token, err := a.auth.IssueToken(actorID, nil)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/api/v1/activity-stream", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, api.server.URL+"/api/v1/activity-stream", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp2, err := api.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp2.StatusCode)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		resp := api.request(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCreateAndGetReview(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", map[string]any{
		"targetId": "book-1",
		"rating":   4,
		"body":     "Loved it.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decode[reviews.Review](t, resp)
	if created.ID == "" || created.ActorID != "user-1" || created.Rating != 4 {
		t.Errorf("created = %+v", created)
	}

	resp = api.request(t, http.MethodGet, "/api/v1/reviews/"+created.ID, "user-2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	fetched := decode[reviews.Review](t, resp)
	if fetched.ID != created.ID || fetched.Body != "Loved it." {
		t.Errorf("fetched = %+v", fetched)
	}
}

func TestDuplicateReviewConflict(t *testing.T) {
	api := newTestAPI(t)

	payload := map[string]any{"targetId": "book-1", "rating": 5}
	resp := api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d", resp.StatusCode)
	}
	first := decode[reviews.Review](t, resp)

	resp = api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
	conflict := decode[errorResponse](t, resp)
	if conflict.ExistingID != first.ID {
		t.Errorf("existingId = %q, want %q", conflict.ExistingID, first.ID)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"rating too high", map[string]any{"targetId": "book-1", "rating": 6}, http.StatusBadRequest},
		{"rating missing", map[string]any{"targetId": "book-1"}, http.StatusBadRequest},
		{"target missing", map[string]any{"rating": 3}, http.StatusBadRequest},
		{"unknown target", map[string]any{"targetId": "ghost", "rating": 3}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", tc.body)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestGetReviewByPair(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", map[string]any{
		"targetId": "book-1", "rating": 4,
	})
	created := decode[reviews.Review](t, resp)

	resp = api.request(t, http.MethodGet, "/api/v1/reviews/of/user-1/book-1", "user-2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	found := decode[reviews.Review](t, resp)
	if found.ID != created.ID {
		t.Errorf("found = %q, want %q", found.ID, created.ID)
	}

	resp = api.request(t, http.MethodGet, "/api/v1/reviews/of/user-1/book-2", "user-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing pair status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteReview(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", map[string]any{
		"targetId": "book-1", "rating": 3,
	})
	created := decode[reviews.Review](t, resp)

	// Another actor cannot delete it.
	resp = api.request(t, http.MethodDelete, "/api/v1/reviews/"+created.ID, "user-2", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", resp.StatusCode)
	}

	resp = api.request(t, http.MethodDelete, "/api/v1/reviews/"+created.ID, "user-1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = api.request(t, http.MethodDelete, "/api/v1/reviews/"+created.ID, "user-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}

	// The slot is free again.
	resp = api.request(t, http.MethodPost, "/api/v1/reviews", "user-1", map[string]any{
		"targetId": "book-1", "rating": 5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("re-create status = %d, want 201", resp.StatusCode)
	}
}

func seedFeed(t *testing.T, store *feed.Store, n int) {
	t.Helper()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		item := &feed.Item{
			TargetID:  fmt.Sprintf("book-%d", i),
			ActorID:   fmt.Sprintf("user-%d", i%3),
			Kind:      feed.KindPostCreated,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Title:     fmt.Sprintf("Book %d", i),
		}
		if _, err := store.Push(context.Background(), item, fmt.Sprintf("hash-%d", i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
}

func TestActivityStreamPagination(t *testing.T) {
	api := newTestAPI(t)
	seedFeed(t, api.feeds, 25)

	resp := api.request(t, http.MethodGet, "/api/v1/activity-stream?limit=10", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := decode[struct {
		Items []feed.Item `json:"items"`
		Total int         `json:"total"`
		Limit int         `json:"limit"`
		Skip  int         `json:"skip"`
	}](t, resp)

	if page.Total != 25 || len(page.Items) != 10 {
		t.Fatalf("total = %d, items = %d", page.Total, len(page.Items))
	}
	// Newest first.
	if page.Items[0].TargetID != "book-24" {
		t.Errorf("first item = %s, want book-24", page.Items[0].TargetID)
	}

	resp = api.request(t, http.MethodGet, "/api/v1/activity-stream?limit=10&skip=20", "user-1", nil)
	tail := decode[struct {
		Items []feed.Item `json:"items"`
	}](t, resp)
	if len(tail.Items) != 5 {
		t.Errorf("tail items = %d, want 5", len(tail.Items))
	}
}

func TestActivityStreamLimitClamped(t *testing.T) {
	api := newTestAPI(t)
	seedFeed(t, api.feeds, 5)

	resp := api.request(t, http.MethodGet, "/api/v1/activity-stream?limit=99999", "user-1", nil)
	page := decode[struct {
		Limit int `json:"limit"`
	}](t, resp)
	if page.Limit != 100 {
		t.Errorf("limit = %d, want clamped to 100", page.Limit)
	}
}

func TestActivityStreamUser(t *testing.T) {
	api := newTestAPI(t)
	seedFeed(t, api.feeds, 9) // user-0, user-1, user-2 get 3 each

	resp := api.request(t, http.MethodGet, "/api/v1/activity-stream/user", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := decode[struct {
		Items []feed.Item `json:"items"`
		Total int         `json:"total"`
	}](t, resp)

	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
	for _, item := range page.Items {
		if item.ActorID != "user-1" {
			t.Errorf("foreign item in user feed: %+v", item)
		}
	}
}

func TestActivityStreamStats(t *testing.T) {
	api := newTestAPI(t)
	seedFeed(t, api.feeds, 9)

	resp := api.request(t, http.MethodGet, "/api/v1/activity-stream/stats", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	stats := decode[feed.Stats](t, resp)
	if stats.GlobalItems != 9 || stats.ActorFeeds != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTokenSubjectRequired(t *testing.T) {
	auth := NewAuthenticator("test-secret")

	token, err := auth.IssueToken("", nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := auth.parseSubject(token); err == nil {
		t.Error("empty subject should be rejected")
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	other := NewAuthenticator("other-secret")
	token, err := other.IssueToken("user-1", nil)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	auth := NewAuthenticator("test-secret")
	_, err = auth.parseSubject(token)
	if err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("rejection should be a signature failure, got %v", err)
	}
}
