package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/repository"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// RateLimiter is a fixed-window counter kept in the rate_limiter table.
// Callers racing on one key are serialized by the row lock, or by the unique
// index when the window row does not exist yet.
type RateLimiter struct {
	pool dbx.Pool
	now  func() time.Time
	log  zerolog.Logger
}

func NewRateLimiter(pool dbx.Pool, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{pool: pool, now: time.Now, log: log}
}

func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// WindowStart aligns now to the epoch-based window boundary.
func WindowStart(now time.Time, window time.Duration) time.Time {
	size := int64(window / time.Second)
	unix := now.Unix()
	return time.Unix(unix-unix%size, 0).UTC()
}

// CheckAndIncrement admits one action for key inside the caller's
// transaction. A denied decision may follow a write (a lost first-insert
// race), so the caller must roll back when Allowed is false.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, tx dbx.DBTX, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window < time.Second {
		return Decision{}, ErrInvalidInput
	}

	now := l.now()
	start := WindowStart(now, window)
	denied := Decision{Count: limit, RetryAfter: start.Add(window).Sub(now)}

	windows := repository.NewRateLimitRepository(tx)
	current, err := windows.LockWindow(ctx, key, start)
	if errors.Is(err, repository.ErrWindowNotFound) {
		count, err := windows.Open(ctx, key, start)
		if err != nil {
			return Decision{}, fmt.Errorf("open rate limit window: %w", err)
		}
		if count > limit {
			return denied, nil
		}
		return Decision{Allowed: true, Count: count}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("lock rate limit window: %w", err)
	}

	if current.Count >= limit {
		return denied, nil
	}

	count, err := windows.Increment(ctx, current.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("increment rate limit window: %w", err)
	}
	return Decision{Allowed: true, Count: count}, nil
}

var errDenied = errors.New("rate limit denied")

// Allow runs CheckAndIncrement in its own transaction.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	var decision Decision
	err := dbx.WithTx(ctx, l.pool, func(ctx context.Context, tx pgx.Tx) error {
		d, err := l.CheckAndIncrement(ctx, tx, key, limit, window)
		if err != nil {
			return err
		}
		decision = d
		if !d.Allowed {
			return errDenied
		}
		return nil
	})
	if errors.Is(err, errDenied) {
		l.log.Debug().Str("key", key).Dur("retry_after", decision.RetryAfter).Msg("rate limit denied")
		return decision, nil
	}
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}
