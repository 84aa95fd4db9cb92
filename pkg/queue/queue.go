// Package queue provides an at-least-once message queue with visibility
// timeouts, backing asynchronous episode ingestion.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned when acking or extending an unknown or
// already acked message.
var ErrMessageNotFound = errors.New("queue: message not found")

// Message is one queued payload. Attempts counts deliveries, including
// the current one.
type Message struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	VisibleAt  time.Time `json:"visible_at"`
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Visible   int       `json:"visible"`
	Invisible int       `json:"invisible"`
	Refreshed time.Time `json:"refreshed"`
}

// Queue is an at-least-once delivery queue. Received messages become
// invisible for the visibility window; unacked messages reappear after
// it elapses.
type Queue interface {
	// Send enqueues a payload and returns its message id.
	Send(ctx context.Context, body []byte) (string, error)

	// Receive returns up to max visible messages, making each invisible
	// for the visibility window. An empty result is not an error.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error)

	// Ack removes a delivered message permanently.
	Ack(ctx context.Context, id string) error

	// Nack returns a delivered message to the queue immediately.
	Nack(ctx context.Context, id string) error

	// Extend pushes out the visibility deadline of an in-flight message.
	Extend(ctx context.Context, id string, visibility time.Duration) error

	// Stats reports current queue depth.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
