package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup(t *testing.T) {
	mock := newMock(t)
	m := NewMaintenance(mock, time.Hour, zerolog.Nop()).WithClock(clock)

	mock.ExpectExec("DELETE FROM user_remember_tokens WHERE expires_at").WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM rate_limiter").WithArgs(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	report, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{RememberTokens: 3, RateLimitWindows: 12}, report)
}

func TestCleanupStopsOnError(t *testing.T) {
	mock := newMock(t)
	m := NewMaintenance(mock, time.Hour, zerolog.Nop()).WithClock(clock)

	mock.ExpectExec("DELETE FROM user_remember_tokens").WillReturnError(errors.New("db down"))

	_, err := m.Cleanup(context.Background())
	require.Error(t, err)
}
