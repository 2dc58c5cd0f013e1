// Package worker runs the dispatch consumer and bridges queue deliveries to
// the dispatch service.
package worker

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/queue"
	"github.com/wanderplan/planner-api/internal/service"
)

// Runner owns the dispatch consume loop for one worker process.
type Runner struct {
	consumer *queue.Consumer
	logger   *slog.Logger
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Channel  *amqp.Channel
	Queue    config.QueueConfig
	Worker   config.WorkerConfig
	Dispatch *service.DispatchService
	Logger   *slog.Logger
}

// NewRunner creates a worker Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Dispatch == nil {
		return nil, errors.New("DispatchService is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	consumer, err := queue.NewConsumer(queue.ConsumerOptions{
		Channel:  opts.Channel,
		Queue:    opts.Queue,
		Prefetch: opts.Worker.Concurrency,
		Handler: func(ctx context.Context, delivery queue.TaskDelivery) error {
			task := model.DispatchTask{
				JobID:    delivery.JobID,
				InputRef: delivery.InputRef,
				Kind:     model.JobKind(delivery.Kind),
			}
			if err := task.Validate(); err != nil {
				// Structurally valid JSON with nonsense fields. Fail the job
				// if one is named; retrying cannot fix the task.
				logger.ErrorContext(ctx, "invalid dispatch task, dropping", "job_id", delivery.JobID, "err", err)
				opts.Dispatch.HandleDrop(ctx, delivery.JobID, "invalid dispatch task")
				return nil
			}
			return opts.Dispatch.HandleTask(ctx, task)
		},
		OnDrop: opts.Dispatch.HandleDrop,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{consumer: consumer, logger: logger}, nil
}

// Run consumes until the context is canceled. It blocks.
func (r *Runner) Run(ctx context.Context) error {
	return r.consumer.Start(ctx)
}
