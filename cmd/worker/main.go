package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"cellarhub/server/internal/cache"
	"cellarhub/server/internal/config"
	"cellarhub/server/internal/database"
	"cellarhub/server/internal/jobs"
	"cellarhub/server/internal/log"
	"cellarhub/server/internal/queue"
	"cellarhub/server/internal/service"
	"cellarhub/server/internal/storage"
	"cellarhub/server/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	rateWindow := cfg.Share.RateWindow
	if cfg.Security.LoginRateWindow > rateWindow {
		rateWindow = cfg.Security.LoginRateWindow
	}
	maintenance := service.NewMaintenance(dbPool, rateWindow, logger)
	processor := tasks.NewProcessor(maintenance, objectStore, logger)
	producer := queue.NewProducer(client, cfg.Worker.Stream)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	// The worker owns the cron so cleanup is scheduled once per deployment
	// no matter how many API replicas run.
	scheduler := jobs.NewScheduler(producer, cfg.Worker.CleanupSpec, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("scheduled jobs still running at shutdown")
	}
}
