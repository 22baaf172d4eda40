// Package memory provides a queue implementation for tests and local
// development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations. Nacked
// deliveries go back onto the queue, approximating the broker's redelivery.
type Queue struct {
	ch      chan []byte
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan []byte, capacity),
	}
}

// Publish pushes a task into the queue or returns if the context ends.
func (q *Queue) Publish(ctx context.Context, task harvester.Task) error {
	body, err := queue.EncodeTask(task)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case q.ch <- body:
		return nil
	}
}

// Receive pops the next delivery, respecting context cancellation.
func (q *Queue) Receive(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("receive canceled: %w", ctx.Err())
	case body, ok := <-q.ch:
		if !ok {
			return nil, errors.New("queue closed")
		}
		return &delivery{queue: q, body: body}, nil
	}
}

// Len reports the number of queued (undelivered) messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

type delivery struct {
	queue *Queue
	body  []byte
}

func (d *delivery) Body() []byte { return d.body }

func (d *delivery) Ack() error { return nil }

func (d *delivery) Nack(requeue bool) error {
	if !requeue {
		return nil
	}
	select {
	case d.queue.ch <- d.body:
		return nil
	default:
		return errors.New("queue full, redelivery dropped")
	}
}
