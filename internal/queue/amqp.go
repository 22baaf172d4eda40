package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// AMQPConfig points at the broker and the durable task queue.
type AMQPConfig struct {
	URL   string
	Queue string
}

// AMQP implements Consumer and Publisher over RabbitMQ. Prefetch is pinned
// to 1 so a worker holds at most one unacknowledged task at a time.
type AMQP struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zap.Logger

	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// DialAMQP connects to the broker, opens a channel, and declares the
// durable task queue.
func DialAMQP(cfg AMQPConfig, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		closeErr := conn.Close()
		if closeErr != nil {
			logger.Warn("failed to close amqp connection after channel failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		closeErr := conn.Close()
		if closeErr != nil {
			logger.Warn("failed to close amqp connection after qos failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		closeErr := conn.Close()
		if closeErr != nil {
			logger.Warn("failed to close amqp connection after declare failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}
	return &AMQP{conn: conn, ch: ch, queue: cfg.Queue, logger: logger}, nil
}

// Publish enqueues one task as a persistent JSON message.
func (a *AMQP) Publish(ctx context.Context, task harvester.Task) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	err = a.ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Receive blocks until the next delivery or context cancellation.
func (a *AMQP) Receive(ctx context.Context) (Delivery, error) {
	a.consumeOnce.Do(func() {
		deliveries, err := a.ch.Consume(a.queue, "", false, false, false, false, nil)
		if err != nil {
			a.consumeErr = fmt.Errorf("start consuming %q: %w", a.queue, err)
			return
		}
		a.deliveries = deliveries
	})
	if a.consumeErr != nil {
		return nil, a.consumeErr
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("receive canceled: %w", ctx.Err())
	case d, ok := <-a.deliveries:
		if !ok {
			return nil, errors.New("amqp delivery channel closed")
		}
		return &amqpDelivery{d: d}, nil
	}
}

// Close shuts down the channel and connection.
func (a *AMQP) Close() error {
	if err := a.ch.Close(); err != nil {
		return fmt.Errorf("close amqp channel: %w", err)
	}
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("close amqp connection: %w", err)
	}
	return nil
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (d *amqpDelivery) Body() []byte { return d.d.Body }

func (d *amqpDelivery) Ack() error { return d.d.Ack(false) }

func (d *amqpDelivery) Nack(requeue bool) error { return d.d.Nack(false, requeue) }
