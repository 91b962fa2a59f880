package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps counters in the rate_limits table, so every process
// sharing the database file shares one limit per identity.
type SQLiteStore struct {
	db     *sql.DB
	limit  int
	window time.Duration
	clock  Clock
}

// NewSQLiteStore creates a store on db. The schema is created by db.Init.
func NewSQLiteStore(db *sql.DB, limit int, window time.Duration, opts ...Option) *SQLiteStore {
	o := buildOptions(opts)
	return &SQLiteStore{
		db:     db,
		limit:  limit,
		window: window,
		clock:  o.clock,
	}
}

// The upsert only bumps count while it is below the limit. When the
// WHERE clause rejects the update, RETURNING yields no row.
const upsertSQL = `
INSERT INTO rate_limits (key, count, reset_at) VALUES (?, 1, ?)
ON CONFLICT(key) DO UPDATE SET count = rate_limits.count + 1
WHERE rate_limits.count < ?
RETURNING count`

// CheckAndIncrement implements Store.
func (s *SQLiteStore) CheckAndIncrement(ctx context.Context, key string) (allowed bool, err error) {
	now := s.clock()
	nowMS := now.UnixMilli()
	resetMS := now.Add(s.window).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Expired windows go first so the upsert below opens a fresh one.
	if _, err = tx.ExecContext(ctx, "DELETE FROM rate_limits WHERE reset_at <= ?", nowMS); err != nil {
		return false, fmt.Errorf("failed to evict expired windows: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, upsertSQL, key, resetMS, s.limit).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
		allowed = false
	case err != nil:
		return false, fmt.Errorf("failed to update rate limit: %w", err)
	default:
		allowed = true
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rate limit: %w", err)
	}
	return allowed, nil
}

// Len returns the number of identities with an open window.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rate_limits").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rate limits: %w", err)
	}
	return n, nil
}
