package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/graphmem/pkg/utils"
)

// MemoryQueue is an in-process Queue for tests and single-node setups.
type MemoryQueue struct {
	mu       sync.Mutex
	messages map[string]*Message
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{messages: make(map[string]*Message)}
}

func (q *MemoryQueue) Send(ctx context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := utils.UTCNow()
	msg := &Message{
		ID:         utils.GenerateUUID(),
		Body:       append([]byte(nil), body...),
		EnqueuedAt: now,
		VisibleAt:  now,
	}
	q.messages[msg.ID] = msg
	return msg.ID, nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := utils.UTCNow()
	var visible []*Message
	for _, msg := range q.messages {
		if !msg.VisibleAt.After(now) {
			visible = append(visible, msg)
		}
	}
	// Oldest first for fairness.
	sort.Slice(visible, func(i, j int) bool {
		if !visible[i].EnqueuedAt.Equal(visible[j].EnqueuedAt) {
			return visible[i].EnqueuedAt.Before(visible[j].EnqueuedAt)
		}
		return visible[i].ID < visible[j].ID
	})
	if max > 0 && len(visible) > max {
		visible = visible[:max]
	}

	out := make([]*Message, 0, len(visible))
	for _, msg := range visible {
		msg.Attempts++
		msg.VisibleAt = now.Add(visibility)
		copied := *msg
		copied.Body = append([]byte(nil), msg.Body...)
		out = append(out, &copied)
	}
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.messages[id]; !ok {
		return ErrMessageNotFound
	}
	delete(q.messages, id)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	msg.VisibleAt = utils.UTCNow()
	return nil
}

func (q *MemoryQueue) Extend(ctx context.Context, id string, visibility time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	msg.VisibleAt = utils.UTCNow().Add(visibility)
	return nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (*Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := utils.UTCNow()
	stats := &Stats{Refreshed: now}
	for _, msg := range q.messages {
		if msg.VisibleAt.After(now) {
			stats.Invisible++
		} else {
			stats.Visible++
		}
	}
	return stats, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
