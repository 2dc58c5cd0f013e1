// Package queue provides the RabbitMQ transport for dispatch tasks: topology
// declaration, the publisher used at enqueue time, and the consumer loop the
// worker runs.
//
// Retry is broker-native. The dispatch queue dead-letters rejected messages
// into a TTL retry queue, which dead-letters them back after the delay. The
// consumer bounds the cycle by counting x-death rejections and dropping a
// message once it has used up its deliveries.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wanderplan/planner-api/config"
)

const (
	routingKeyDispatch = "dispatch"
	routingKeyRetry    = "dispatch.retry"
)

// Connect dials the broker and declares the dispatch topology on a fresh
// channel. Callers own both returned handles and close them on shutdown.
func Connect(cfg config.QueueConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareTopology(ch *amqp.Channel, cfg config.QueueConfig) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	// Rejected dispatch messages dead-letter into the retry queue.
	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    cfg.Exchange,
			"x-dead-letter-routing-key": routingKeyRetry,
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, routingKeyDispatch, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}

	// The retry queue has no consumers. Messages sit until the TTL expires,
	// then dead-letter back onto the dispatch queue.
	retryQueue := cfg.RetryQueueName()
	if _, err := ch.QueueDeclare(
		retryQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl":             int32(cfg.RetryDelayMs),
			"x-dead-letter-exchange":    cfg.Exchange,
			"x-dead-letter-routing-key": routingKeyDispatch,
		},
	); err != nil {
		return fmt.Errorf("declare retry queue %s: %w", retryQueue, err)
	}
	if err := ch.QueueBind(retryQueue, routingKeyRetry, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind retry queue %s: %w", retryQueue, err)
	}
	return nil
}

// deliveryCount returns the 1-based number of the current delivery attempt,
// derived from the broker's x-death header. A message that has never been
// rejected is on delivery 1.
func deliveryCount(d amqp.Delivery) int64 {
	var rejections int64
	deaths, ok := d.Headers["x-death"].([]any)
	if !ok {
		return 1
	}
	for _, death := range deaths {
		entry, ok := death.(amqp.Table)
		if !ok {
			continue
		}
		if reason, _ := entry["reason"].(string); reason != "rejected" {
			continue
		}
		if count, ok := entry["count"].(int64); ok {
			rejections += count
		}
	}
	return rejections + 1
}
