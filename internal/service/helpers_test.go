package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/queue"
)

var now = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func testConfig() *config.AppConfig {
	cfg := config.Defaults()
	cfg.Site.BaseURL = "https://cellar.example"
	cfg.Security.LoginRateLimit = 0
	return cfg
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return q.err
}

var rateLimitCols = []string{"id", "count"}
