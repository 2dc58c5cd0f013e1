package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/wanderplan/planner-api/config"
)

// TaskHandler processes one decoded dispatch task. Returning an error sends
// the message through the retry cycle; nil acknowledges it.
type TaskHandler func(ctx context.Context, delivery TaskDelivery) error

// TaskDelivery is one decoded dispatch message along with its 1-based
// delivery attempt number.
type TaskDelivery struct {
	JobID    string
	InputRef string
	Kind     string
	Attempt  int64
}

// DropHandler is invoked when a message exhausts its delivery budget or
// cannot be decoded and is removed from the queue without being processed.
type DropHandler func(ctx context.Context, jobID string, reason string)

// Consumer runs the dispatch consume loop with manual acknowledgements.
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	maxDeliveries int64
	prefetch      int
	handle        TaskHandler
	onDrop        DropHandler
	logger        *slog.Logger
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Channel *amqp.Channel
	Queue   config.QueueConfig
	// Prefetch bounds unacknowledged deliveries per consumer.
	Prefetch int
	Handler  TaskHandler
	// OnDrop is optional; dropped messages are always logged.
	OnDrop DropHandler
	Logger *slog.Logger
}

// NewConsumer creates a Consumer. Start must be called to begin consuming.
func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	if opts.Channel == nil {
		return nil, errors.New("amqp channel is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("task handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		channel:       opts.Channel,
		queue:         opts.Queue.Queue,
		maxDeliveries: int64(opts.Queue.MaxDeliveries),
		prefetch:      prefetch,
		handle:        opts.Handler,
		onDrop:        opts.OnDrop,
		logger:        logger.With("component", "queue_consumer"),
	}, nil
}

// Start consumes the dispatch queue until the context is canceled or the
// channel closes. It blocks, so callers run it in a goroutine or errgroup.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", c.queue, err)
	}

	c.logger.InfoContext(ctx, "consuming dispatch queue", "queue", c.queue, "prefetch", c.prefetch)

	// Deliveries are handled concurrently up to the prefetch window; the
	// broker holds further messages until one is acked or nacked.
	group := &errgroup.Group{}
	group.SetLimit(c.prefetch)
	defer group.Wait() //nolint:errcheck // handlers never return errors

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			group.Go(func() error {
				c.handleDelivery(ctx, msg)
				return nil
			})
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var task struct {
		JobID    string `json:"job_id"`
		InputRef string `json:"input_ref"`
		Kind     string `json:"kind"`
	}
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		// Poison message: retrying cannot fix a decode failure.
		c.logger.ErrorContext(ctx, "dropping undecodable dispatch message", "err", err)
		c.drop(ctx, msg, "", "undecodable payload")
		return
	}

	attempt := deliveryCount(msg)
	if c.maxDeliveries > 0 && attempt > c.maxDeliveries {
		c.logger.WarnContext(ctx, "dispatch task exhausted delivery budget",
			"job_id", task.JobID, "attempt", attempt, "max_deliveries", c.maxDeliveries)
		c.drop(ctx, msg, task.JobID, "delivery budget exhausted")
		return
	}

	err := c.handle(ctx, TaskDelivery{
		JobID:    task.JobID,
		InputRef: task.InputRef,
		Kind:     task.Kind,
		Attempt:  attempt,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "dispatch task failed, routing to retry queue",
			"job_id", task.JobID, "attempt", attempt, "err", err)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.ErrorContext(ctx, "nack failed", "job_id", task.JobID, "err", nackErr)
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.ErrorContext(ctx, "ack failed", "job_id", task.JobID, "err", ackErr)
	}
}

func (c *Consumer) drop(ctx context.Context, msg amqp.Delivery, jobID, reason string) {
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.ErrorContext(ctx, "ack on drop failed", "job_id", jobID, "err", ackErr)
	}
	if c.onDrop != nil {
		c.onDrop(ctx, jobID, reason)
	}
}
