// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/shelfstream/shelfstream/internal/metrics"
)

// ErrDuplicateReview is returned by Insert when the store's unique
// constraint on (actor_id, target_id) rejects the row.
var ErrDuplicateReview = errors.New("duplicate review for actor and target")

// Store is the durable review record store.
type Store interface {
	Insert(ctx context.Context, review *Review) error
	GetByID(ctx context.Context, id string) (*Review, error)
	GetByActorTarget(ctx context.Context, actorID, targetID string) (*Review, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// DuckDBStore implements Store on DuckDB. The UNIQUE constraint on
// (actor_id, target_id) is the authoritative uniqueness enforcement.
type DuckDBStore struct {
	conn *sql.DB
}

var _ Store = (*DuckDBStore)(nil)

const reviewsSchema = `
CREATE TABLE IF NOT EXISTS reviews (
	id UUID PRIMARY KEY,
	actor_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	body TEXT,
	tags TEXT,
	spoiler_warning BOOLEAN NOT NULL DEFAULT FALSE,
	helpful_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (actor_id, target_id)
)`

var reviewsIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_reviews_target ON reviews(target_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_actor ON reviews(actor_id)`,
}

// OpenDuckDB opens (or creates) the review database at path and
// initializes the schema. Use ":memory:" for tests.
func OpenDuckDB(path string) (*DuckDBStore, error) {
	connStr := path
	if path != ":memory:" {
		connStr = fmt.Sprintf("%s?access_mode=read_write", path)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	if _, err := conn.ExecContext(ctx, reviewsSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create reviews table: %w", err)
	}
	for _, idx := range reviewsIndexes {
		if _, err := conn.ExecContext(ctx, idx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return &DuckDBStore{conn: conn}, nil
}

// Insert stores a new review. Returns ErrDuplicateReview when the
// (actor_id, target_id) slot is already taken.
func (s *DuckDBStore) Insert(ctx context.Context, review *Review) error {
	tags, err := encodeTags(review.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO reviews
		 (id, actor_id, target_id, rating, body, tags, spoiler_warning,
		  helpful_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		review.ID, review.ActorID, review.TargetID,
		review.Rating, review.Body, tags, review.SpoilerWarning,
		review.HelpfulCount, review.CreatedAt.UTC(), review.UpdatedAt.UTC(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			metrics.GuardConflicts.Inc()
			return ErrDuplicateReview
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

const reviewColumns = `id, actor_id, target_id, rating, body, tags,
	spoiler_warning, helpful_count, created_at, updated_at`

// GetByID fetches a review by its id.
func (s *DuckDBStore) GetByID(ctx context.Context, id string) (*Review, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	return scanReview(row)
}

// GetByActorTarget fetches the review an actor wrote for a target, if any.
func (s *DuckDBStore) GetByActorTarget(ctx context.Context, actorID, targetID string) (*Review, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE actor_id = ? AND target_id = ?`,
		actorID, targetID)
	return scanReview(row)
}

// Delete removes a review by id. Returns ErrReviewNotFound when no row
// matched.
func (s *DuckDBStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if affected == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// Ping verifies database connectivity.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close shuts down the connection pool.
func (s *DuckDBStore) Close() error {
	return s.conn.Close()
}

func scanReview(row *sql.Row) (*Review, error) {
	var r Review
	var body, tags sql.NullString
	err := row.Scan(&r.ID, &r.ActorID, &r.TargetID, &r.Rating, &body, &tags,
		&r.SpoilerWarning, &r.HelpfulCount, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan review: %w", err)
	}
	r.Body = body.String
	if r.Tags, err = decodeTags(tags.String); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// encodeTags stores tag lists as a JSON array. Empty lists are stored
// as NULL-equivalent empty strings.
func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// isConstraintViolation matches DuckDB unique-key error text. The
// driver does not expose typed constraint errors. The match is kept
// narrow so CHECK violations are not misreported as duplicates.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "violates primary key constraint") ||
		strings.Contains(msg, "PRIMARY KEY or UNIQUE constraint")
}
