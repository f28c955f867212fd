package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellarhub/server/internal/queue"
)

type fakeQueue struct {
	tasks []queue.Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.tasks = append(q.tasks, task)
	return q.err
}

func TestSchedulerRegistersCleanup(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, "0 0 */1 * * *", zerolog.Nop())

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, 1, s.Entries())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, "every hour", zerolog.Nop())
	require.Error(t, s.Start())
}

func TestEnqueueCleanup(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, "0 0 */1 * * *", zerolog.Nop())

	s.enqueueCleanup()
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskCleanup, q.tasks[0].Type)

	q.err = errors.New("redis down")
	s.enqueueCleanup()
	assert.Len(t, q.tasks, 2)
}
