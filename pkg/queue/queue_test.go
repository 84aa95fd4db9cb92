package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queues(t *testing.T) map[string]Queue {
	t.Helper()
	badgerQ, err := NewBadgerQueue("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerQ.Close() })
	return map[string]Queue{
		"memory": NewMemoryQueue(),
		"badger": badgerQ,
	}
}

func TestSendReceiveAck(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := q.Send(ctx, []byte("hello"))
			require.NoError(t, err)

			msgs, err := q.Receive(ctx, 10, time.Minute)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, id, msgs[0].ID)
			assert.Equal(t, []byte("hello"), msgs[0].Body)
			assert.Equal(t, 1, msgs[0].Attempts)

			// Invisible until the window elapses.
			again, err := q.Receive(ctx, 10, time.Minute)
			require.NoError(t, err)
			assert.Empty(t, again)

			require.NoError(t, q.Ack(ctx, id))
			assert.ErrorIs(t, q.Ack(ctx, id), ErrMessageNotFound)
		})
	}
}

func TestNackMakesVisibleAgain(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := q.Send(ctx, []byte("retry me"))
			require.NoError(t, err)

			_, err = q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)
			require.NoError(t, q.Nack(ctx, id))

			msgs, err := q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, 2, msgs[0].Attempts)
		})
	}
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := q.Send(ctx, []byte("slow"))
			require.NoError(t, err)

			msgs, err := q.Receive(ctx, 1, 10*time.Millisecond)
			require.NoError(t, err)
			require.Len(t, msgs, 1)

			time.Sleep(20 * time.Millisecond)
			msgs, err = q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, 2, msgs[0].Attempts)
		})
	}
}

func TestExtendKeepsMessageInvisible(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := q.Send(ctx, []byte("long job"))
			require.NoError(t, err)

			_, err = q.Receive(ctx, 1, 10*time.Millisecond)
			require.NoError(t, err)
			require.NoError(t, q.Extend(ctx, id, time.Minute))

			time.Sleep(20 * time.Millisecond)
			msgs, err := q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestReceiveOldestFirstAndBounded(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := q.Send(ctx, []byte("first"))
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
			_, err = q.Send(ctx, []byte("second"))
			require.NoError(t, err)

			msgs, err := q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, first, msgs[0].ID)
		})
	}
}

func TestStats(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := q.Send(ctx, []byte("a"))
			require.NoError(t, err)
			_, err = q.Send(ctx, []byte("b"))
			require.NoError(t, err)

			_, err = q.Receive(ctx, 1, time.Minute)
			require.NoError(t, err)

			stats, err := q.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Visible)
			assert.Equal(t, 1, stats.Invisible)
		})
	}
}
