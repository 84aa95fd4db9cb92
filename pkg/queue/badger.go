package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/graphmem/pkg/utils"
)

var messagePrefix = []byte("q:")

// BadgerQueue is a durable Queue over a badger key-value store. Messages
// survive restarts; in-flight messages reappear once their visibility
// deadline passes.
type BadgerQueue struct {
	db *badger.DB
}

// NewBadgerQueue opens a queue at path. An empty path uses an in-memory
// store.
func NewBadgerQueue(path string) (*BadgerQueue, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}
	return &BadgerQueue{db: db}, nil
}

func messageKey(id string) []byte {
	return append(append([]byte(nil), messagePrefix...), id...)
}

func (q *BadgerQueue) Send(ctx context.Context, body []byte) (string, error) {
	now := utils.UTCNow()
	msg := &Message{
		ID:         utils.GenerateUUID(),
		Body:       body,
		EnqueuedAt: now,
		VisibleAt:  now,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), payload)
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	return msg.ID, nil
}

func (q *BadgerQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	now := utils.UTCNow()
	var out []*Message

	err := q.db.Update(func(txn *badger.Txn) error {
		candidates, err := visibleMessages(txn, now)
		if err != nil {
			return err
		}
		if max > 0 && len(candidates) > max {
			candidates = candidates[:max]
		}
		for _, msg := range candidates {
			msg.Attempts++
			msg.VisibleAt = now.Add(visibility)
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(messageKey(msg.ID), payload); err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	return out, nil
}

func visibleMessages(txn *badger.Txn, now time.Time) ([]*Message, error) {
	var out []*Message
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
		var msg Message
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		})
		if err != nil {
			return nil, err
		}
		if !msg.VisibleAt.After(now) {
			copied := msg
			out = append(out, &copied)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *BadgerQueue) Ack(ctx context.Context, id string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageKey(id)); err != nil {
			return err
		}
		return txn.Delete(messageKey(id))
	})
	if err == badger.ErrKeyNotFound {
		return ErrMessageNotFound
	}
	return err
}

func (q *BadgerQueue) Nack(ctx context.Context, id string) error {
	return q.reschedule(id, utils.UTCNow())
}

func (q *BadgerQueue) Extend(ctx context.Context, id string, visibility time.Duration) error {
	return q.reschedule(id, utils.UTCNow().Add(visibility))
}

func (q *BadgerQueue) reschedule(id string, visibleAt time.Time) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		var msg Message
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}
		msg.VisibleAt = visibleAt
		payload, err := json.Marshal(&msg)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(id), payload)
	})
	if err == badger.ErrKeyNotFound {
		return ErrMessageNotFound
	}
	return err
}

func (q *BadgerQueue) Stats(ctx context.Context) (*Stats, error) {
	now := utils.UTCNow()
	stats := &Stats{Refreshed: now}

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
			var msg Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			if msg.VisibleAt.After(now) {
				stats.Invisible++
			} else {
				stats.Visible++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (q *BadgerQueue) Close() error {
	return q.db.Close()
}
