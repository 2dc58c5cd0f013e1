// Command wanderplan runs the planner service. One binary hosts up to three
// service modes, selected by the SERVICES environment variable: the HTTP API
// (job submission, polling, planner callbacks), the dispatch worker, and the
// stale-job reaper.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/adapters/worker"
	"github.com/wanderplan/planner-api/internal/bootstrap"
	"github.com/wanderplan/planner-api/internal/queue"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	logger := bootstrap.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "err", err)
		stop()
		os.Exit(1) //nolint:forbidigo // non-zero exit on fatal startup or runtime error
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting wanderplan planner service",
		"services", cfg.Services,
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
	)
	if len(enabled) == 0 {
		return errors.New("no services enabled")
	}

	db, err := bootstrap.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeQuietly(logger, "database", db.Close)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}

	redisClient, err := bootstrap.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeQuietly(logger, "redis", redisClient.Close)

	conn, channel, err := queue.Connect(cfg.Queue)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer closeQuietly(logger, "amqp connection", conn.Close)
	defer closeQuietly(logger, "amqp channel", channel.Close)

	container, err := bootstrap.BuildContainer(bootstrap.ContainerOptions{
		Config:  cfg,
		DB:      db,
		Channel: channel,
		Redis:   redisClient,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "metrics client", container.Metrics.Close)

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.IsHTTPServerEnabled() {
		server := bootstrap.NewHTTPServer(bootstrap.HTTPServerOptions{
			Config:    cfg,
			Container: container,
			DB:        db,
			Logger:    logger,
		})
		group.Go(func() error {
			return bootstrap.RunHTTPServer(groupCtx, server, cfg.HTTP, logger)
		})
	}

	if cfg.IsWorkerEnabled() {
		runner, err := worker.NewRunner(worker.RunnerOptions{
			Channel:  channel,
			Queue:    cfg.Queue,
			Worker:   cfg.Worker,
			Dispatch: container.Dispatch,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("create worker: %w", err)
		}
		group.Go(func() error {
			return runner.Run(groupCtx)
		})
	}

	if cfg.IsReaperEnabled() {
		group.Go(func() error {
			return container.Reaper.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoContext(ctx, "wanderplan planner service stopped")
	return nil
}

func closeQuietly(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("close "+name+" failed", "err", err)
	}
}
