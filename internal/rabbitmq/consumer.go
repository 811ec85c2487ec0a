package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivery body. Returning an error drops the message.
type Handler func(ctx context.Context, body []byte) error

// Consumer reads a durable queue bound to the exchange.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zap.Logger
}

// NewConsumer declares the exchange and queue and binds them with bindingKey.
func NewConsumer(amqpURL, exchange, queue, bindingKey string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	setup := func() error {
		if err := declareExchange(ch, exchange); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(queue, bindingKey, exchange, false, nil); err != nil {
			return err
		}
		return ch.Qos(prefetch, 0, false)
	}
	if err := setup(); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Consumer{conn: conn, ch: ch, queue: queue, logger: logger.Named("consumer").With(zap.String("queue", queue))}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				c.logger.Warn("delivery dropped", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
