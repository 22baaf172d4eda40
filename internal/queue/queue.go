// Package queue defines the durable task queue abstraction and its JSON
// task codec. The design assumes at-least-once, possibly out-of-order,
// redelivery; correctness comes from idempotent upserts downstream, never
// from queue semantics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// Delivery is one received task message. Ack removes it from the durable
// queue; Nack with requeue returns it for another delivery attempt, by this
// or another worker.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Consumer blocks on the queue's receive side.
type Consumer interface {
	Receive(ctx context.Context) (Delivery, error)
}

// Publisher enqueues tasks durably.
type Publisher interface {
	Publish(ctx context.Context, task harvester.Task) error
}

// EncodeTask marshals a task to its wire form.
func EncodeTask(task harvester.Task) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return body, nil
}

// DecodeTask unmarshals a task from its wire form.
func DecodeTask(body []byte) (harvester.Task, error) {
	var task harvester.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return harvester.Task{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}
