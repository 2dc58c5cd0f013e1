package queue

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int64
	}{
		{
			name:    "no headers",
			headers: nil,
			want:    1,
		},
		{
			name:    "no x-death",
			headers: amqp.Table{"content-type": "application/json"},
			want:    1,
		},
		{
			name: "one rejection",
			headers: amqp.Table{
				"x-death": []any{
					amqp.Table{"reason": "rejected", "count": int64(1), "queue": "planner.dispatch"},
				},
			},
			want: 2,
		},
		{
			name: "rejections accumulate, expirations do not",
			headers: amqp.Table{
				"x-death": []any{
					amqp.Table{"reason": "rejected", "count": int64(3), "queue": "planner.dispatch"},
					amqp.Table{"reason": "expired", "count": int64(3), "queue": "planner.dispatch.retry"},
				},
			},
			want: 4,
		},
		{
			name: "malformed entries are skipped",
			headers: amqp.Table{
				"x-death": []any{
					"not a table",
					amqp.Table{"reason": "rejected", "count": "not a number"},
					amqp.Table{"reason": "rejected", "count": int64(2)},
				},
			},
			want: 3,
		},
		{
			name:    "x-death of unexpected type",
			headers: amqp.Table{"x-death": "corrupt"},
			want:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := amqp.Delivery{Headers: tt.headers}
			assert.Equal(t, tt.want, deliveryCount(d))
		})
	}
}

func TestNewConsumerValidatesOptions(t *testing.T) {
	_, err := NewConsumer(ConsumerOptions{})
	assert.Error(t, err)

	_, err = NewConsumer(ConsumerOptions{Handler: func(context.Context, TaskDelivery) error { return nil }})
	assert.Error(t, err)
}

func TestNewPublisherRequiresChannel(t *testing.T) {
	_, err := NewPublisher(PublisherOptions{})
	assert.Error(t, err)
}
