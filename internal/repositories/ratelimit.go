// package repositories implements the persistent transfer quota store.
//
// Rate limiting uses a fixed window per identity: at most N transfers per
// window. The store holds one row per identity per window and prunes stale
// windows opportunistically.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// QuotaStore is a SQLite-backed rate limiter.
type QuotaStore struct {
	db     *sql.DB
	max    int
	window time.Duration
	now    func() time.Time
}

// NewQuotaStore creates a quota store over an open database.
// The rate_limits table must exist (see shared.RunMigrations).
func NewQuotaStore(db *sql.DB, cfg shared.RateLimitConfig) *QuotaStore {
	max := cfg.MaxTransfers
	if max <= 0 {
		max = 3
	}
	window := cfg.Window()
	if window <= 0 {
		window = time.Hour
	}

	return &QuotaStore{
		db:     db,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// CheckAndConsume atomically checks the identity's quota and, when allowed,
// consumes one unit. Called exactly once per transfer attempt.
func (s *QuotaStore) CheckAndConsume(ctx context.Context, identity string) (models.QuotaDecision, error) {
	now := s.now()
	windowStart := now.Truncate(s.window)
	resetAt := windowStart.Add(s.window)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback()

	// Stale windows have no readers; prune them while we hold the transaction.
	if _, err := tx.ExecContext(ctx, "DELETE FROM rate_limits WHERE window_start < ?", windowStart.Unix()); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to prune stale windows: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO rate_limits (identity, window_start, count) VALUES (?, ?, 0) ON CONFLICT (identity, window_start) DO NOTHING",
		identity, windowStart.Unix()); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to ensure quota row: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT count FROM rate_limits WHERE identity = ? AND window_start = ?",
		identity, windowStart.Unix()).Scan(&count); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to read quota count: %w", err)
	}

	if count >= s.max {
		return models.QuotaDecision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE rate_limits SET count = count + 1 WHERE identity = ? AND window_start = ?",
		identity, windowStart.Unix()); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to consume quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to commit quota transaction: %w", err)
	}

	return models.QuotaDecision{Allowed: true, Remaining: s.max - count - 1, ResetAt: resetAt}, nil
}

// Peek reports the identity's current quota without consuming.
func (s *QuotaStore) Peek(ctx context.Context, identity string) (models.QuotaDecision, error) {
	now := s.now()
	windowStart := now.Truncate(s.window)
	resetAt := windowStart.Add(s.window)

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT count FROM rate_limits WHERE identity = ? AND window_start = ?",
		identity, windowStart.Unix()).Scan(&count)
	if err == sql.ErrNoRows {
		count = 0
	} else if err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to read quota count: %w", err)
	}

	remaining := s.max - count
	if remaining < 0 {
		remaining = 0
	}

	return models.QuotaDecision{Allowed: count < s.max, Remaining: remaining, ResetAt: resetAt}, nil
}
