package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/repository"
)

type CleanupReport struct {
	RememberTokens   int64
	RateLimitWindows int64
}

// Maintenance removes rows that can no longer affect any decision. Password
// resets are kept for audit.
type Maintenance struct {
	pool       dbx.Pool
	rateWindow time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewMaintenance(pool dbx.Pool, rateWindow time.Duration, log zerolog.Logger) *Maintenance {
	return &Maintenance{pool: pool, rateWindow: rateWindow, now: time.Now, log: log}
}

func (m *Maintenance) WithClock(now func() time.Time) *Maintenance {
	m.now = now
	return m
}

func (m *Maintenance) Cleanup(ctx context.Context) (CleanupReport, error) {
	now := m.now()
	var report CleanupReport

	removed, err := repository.NewRememberTokenRepository(m.pool).DeleteExpired(ctx, now)
	if err != nil {
		return report, fmt.Errorf("purge remember tokens: %w", err)
	}
	report.RememberTokens = removed

	cutoff := WindowStart(now, m.rateWindow).Add(-m.rateWindow)
	removed, err = repository.NewRateLimitRepository(m.pool).DeleteBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("purge rate limit windows: %w", err)
	}
	report.RateLimitWindows = removed

	m.log.Info().
		Int64("remember_tokens", report.RememberTokens).
		Int64("rate_limit_windows", report.RateLimitWindows).
		Msg("cleanup finished")
	return report, nil
}
