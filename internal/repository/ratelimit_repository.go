package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
)

var ErrWindowNotFound = errors.New("rate limit window not found")

type RateLimitRepository struct {
	db dbx.DBTX
}

func NewRateLimitRepository(db dbx.DBTX) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// LockWindow reads the counter row for (key, windowStart) and locks it for
// the rest of the transaction.
func (r *RateLimitRepository) LockWindow(ctx context.Context, key string, windowStart time.Time) (models.RateLimitWindow, error) {
	const query = `
		SELECT id, count
		FROM rate_limiter
		WHERE key_name = $1 AND window_start = $2
		FOR UPDATE
	`
	window := models.RateLimitWindow{KeyName: key, WindowStart: windowStart}
	if err := r.db.QueryRow(ctx, query, key, windowStart).Scan(&window.ID, &window.Count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RateLimitWindow{}, ErrWindowNotFound
		}
		return models.RateLimitWindow{}, err
	}
	return window, nil
}

func (r *RateLimitRepository) Increment(ctx context.Context, id int64) (int, error) {
	const query = `UPDATE rate_limiter SET count = count + 1 WHERE id = $1 RETURNING count`
	var count int
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWindowNotFound
		}
		return 0, err
	}
	return count, nil
}

// Open creates the window with a count of 1. When a concurrent transaction
// created it first, the unique index serializes both and the existing row is
// incremented instead; the returned count tells the caller which happened.
func (r *RateLimitRepository) Open(ctx context.Context, key string, windowStart time.Time) (int, error) {
	const query = `
		INSERT INTO rate_limiter (key_name, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key_name, window_start)
		DO UPDATE SET count = rate_limiter.count + 1
		RETURNING count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, key, windowStart).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RateLimitRepository) Count(ctx context.Context, key string, windowStart time.Time) (int, error) {
	const query = `SELECT COALESCE(MAX(count), 0) FROM rate_limiter WHERE key_name = $1 AND window_start = $2`
	var count int
	if err := r.db.QueryRow(ctx, query, key, windowStart).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RateLimitRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM rate_limiter WHERE window_start < $1`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
