package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/queue"
	"cellarhub/server/internal/security"
	"cellarhub/server/internal/service"
)

type Cleaner interface {
	Cleanup(ctx context.Context) (service.CleanupReport, error)
}

type PreviewWriter interface {
	PutPreview(ctx context.Context, token string, data []byte) error
}

type Processor struct {
	cleaner  Cleaner
	previews PreviewWriter
	logger   zerolog.Logger
}

func NewProcessor(cleaner Cleaner, previews PreviewWriter, logger zerolog.Logger) *Processor {
	return &Processor{
		cleaner:  cleaner,
		previews: previews,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	case queue.TaskSharePreview:
		return p.handleSharePreview(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	_, err := p.cleaner.Cleanup(ctx)
	return err
}

func (p *Processor) handleSharePreview(ctx context.Context, task queue.Task) error {
	if !security.ValidShareToken(task.Token) {
		p.logger.Warn().Str("task_id", task.ID).Msg("share preview task without a valid token")
		return nil
	}

	data, err := RenderPreview(task.Token)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	if err := p.previews.PutPreview(ctx, task.Token, data); err != nil {
		return err
	}

	p.logger.Info().Str("task_id", task.ID).Int("bytes", len(data)).Msg("share preview rendered")
	return nil
}
