package notify

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/planner-api/internal/domain/model"
)

func newTestNotifier(t *testing.T) *RedisNotifier {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listens here
	t.Cleanup(func() { _ = client.Close() })

	notifier, err := NewRedisNotifier(RedisNotifierOptions{
		Client:        client,
		ChannelPrefix: "planner.jobs",
	})
	require.NoError(t, err)
	return notifier
}

func TestNewRedisNotifierValidatesOptions(t *testing.T) {
	_, err := NewRedisNotifier(RedisNotifierOptions{ChannelPrefix: "planner.jobs"})
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	_, err = NewRedisNotifier(RedisNotifierOptions{Client: client})
	assert.Error(t, err)
}

func TestChannelFor(t *testing.T) {
	notifier := newTestNotifier(t)
	assert.Equal(t, "planner.jobs.job-1", notifier.ChannelFor("job-1"))
}

func TestPublishTerminalRefusesNonTerminalStatus(t *testing.T) {
	notifier := newTestNotifier(t)

	err := notifier.PublishTerminal(context.Background(), model.JobNotification{
		JobID:  "job-1",
		Status: model.JobStatusProcessing,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminal")
}

func TestPublishTerminalSurfacesTransportErrors(t *testing.T) {
	notifier := newTestNotifier(t)

	err := notifier.PublishTerminal(context.Background(), model.JobNotification{
		JobID:  "job-1",
		Status: model.JobStatusSuccess,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner.jobs.job-1")
}
