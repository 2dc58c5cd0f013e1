package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// Publisher pushes dispatch tasks onto the durable dispatch queue.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Channel *amqp.Channel
	Queue   config.QueueConfig
	Logger  *slog.Logger
}

// NewPublisher creates a Publisher on an already-declared topology.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Channel == nil {
		return nil, errors.New("amqp channel is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		channel:  opts.Channel,
		exchange: opts.Queue.Exchange,
		logger:   logger.With("component", "queue_publisher"),
	}, nil
}

var _ core.TaskPublisher = (*Publisher)(nil)

// Publish sends a dispatch task as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, task model.DispatchTask) error {
	if err := task.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal dispatch task: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKeyDispatch,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    task.JobID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish dispatch task: %w", err)
	}

	p.logger.DebugContext(ctx, "dispatch task published", "job_id", task.JobID, "kind", task.Kind)
	return nil
}
