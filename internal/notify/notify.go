// Package notify broadcasts terminal job transitions over Redis pub/sub so
// interested clients can stop polling the moment a job settles.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// RedisNotifier publishes job notifications to a per-job Redis channel.
// Delivery is fire-and-forget: the job record stays the source of truth and
// pub/sub only shortens the poll loop.
type RedisNotifier struct {
	client        redis.UniversalClient
	channelPrefix string
	logger        *slog.Logger
}

// RedisNotifierOptions configures a RedisNotifier.
type RedisNotifierOptions struct {
	Client        redis.UniversalClient
	ChannelPrefix string
	Logger        *slog.Logger
}

// NewRedisNotifier creates a RedisNotifier.
func NewRedisNotifier(opts RedisNotifierOptions) (*RedisNotifier, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.ChannelPrefix == "" {
		return nil, errors.New("channel prefix is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		client:        opts.Client,
		channelPrefix: opts.ChannelPrefix,
		logger:        logger.With("component", "notifier"),
	}, nil
}

var _ core.TerminalNotifier = (*RedisNotifier)(nil)

// ChannelFor returns the pub/sub channel name for one job.
func (n *RedisNotifier) ChannelFor(jobID string) string {
	return n.channelPrefix + "." + jobID
}

// PublishTerminal announces a terminal transition. Errors are returned for
// logging but never justify failing the transition that triggered them.
func (n *RedisNotifier) PublishTerminal(ctx context.Context, notification model.JobNotification) error {
	if !notification.Status.Terminal() {
		return fmt.Errorf("refusing to announce non-terminal status %q", notification.Status)
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal job notification: %w", err)
	}

	channel := n.ChannelFor(notification.JobID)
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	n.logger.DebugContext(ctx, "terminal notification published",
		"job_id", notification.JobID, "status", notification.Status)
	return nil
}
