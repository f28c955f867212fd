package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// Scheduler periodically queues maintenance work for the worker.
type Scheduler struct {
	cron        *cron.Cron
	queue       Enqueuer
	cleanupSpec string
	log         zerolog.Logger
}

func NewScheduler(queue Enqueuer, cleanupSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:        c,
		queue:       queue,
		cleanupSpec: cleanupSpec,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cleanupSpec, s.enqueueCleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskCleanup}); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
	}
}
