// Package worker drains the ingestion queue into the knowledge graph
// with bounded concurrency.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundprediction/graphmem/pkg/cache"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/queue"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

const (
	// DefaultVisibility is how long a received episode stays invisible.
	DefaultVisibility = 5 * time.Minute
	// DefaultPollInterval paces the receive loop when the queue is idle.
	DefaultPollInterval = time.Second
	// DefaultMaxAttempts drops an episode after this many deliveries.
	DefaultMaxAttempts = 3
	// DefaultDedupTTL is how long a content hash suppresses re-enqueues.
	DefaultDedupTTL = time.Hour
)

// Ingester processes one episode. *graphmem.Client satisfies it.
type Ingester interface {
	AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error)
}

// Options configures a Worker.
type Options struct {
	// Concurrency bounds parallel episode processing. Defaults to the
	// SEMAPHORE_LIMIT environment setting.
	Concurrency int
	// Visibility is the queue visibility window per delivery.
	Visibility time.Duration
	// PollInterval paces polling when no messages arrive.
	PollInterval time.Duration
	// MaxAttempts drops poison messages after repeated failures.
	MaxAttempts int
	// SerializeGroups processes episodes of one group in order.
	SerializeGroups bool
	// DedupTTL suppresses duplicate submissions by content hash.
	DedupTTL time.Duration
}

// Metrics is a live snapshot of worker throughput.
type Metrics struct {
	Processed   uint64    `json:"processed"`
	Failed      uint64    `json:"failed"`
	Visible     int       `json:"visible"`
	Invisible   int       `json:"invisible"`
	SuccessRate float64   `json:"success_rate"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Worker pulls episodes off the queue and runs them through ingestion.
type Worker struct {
	queue    queue.Queue
	ingester Ingester
	cache    cache.Cache
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	processed  uint64
	failed     uint64
	depth      queue.Stats
	groupLocks map[string]*sync.Mutex
}

// New creates a worker. The cache may be nil, which disables submission
// dedup.
func New(q queue.Queue, ingester Ingester, dedupCache cache.Cache, opts Options, logger *slog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = utils.GetSemaphoreLimit()
	}
	if opts.Visibility <= 0 {
		opts.Visibility = DefaultVisibility
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:      q,
		ingester:   ingester,
		cache:      dedupCache,
		opts:       opts,
		logger:     logger,
		groupLocks: make(map[string]*sync.Mutex),
	}
}

// Enqueue submits an episode for asynchronous ingestion. Episodes whose
// content hash was recently submitted are dropped; the returned id is
// then empty.
func (w *Worker) Enqueue(ctx context.Context, episode types.Episode) (string, error) {
	if w.cache != nil {
		key := contentHashKey(episode)
		if _, err := w.cache.Get(key); err == nil {
			w.logger.Debug("duplicate episode suppressed", "group_id", episode.GroupID)
			return "", nil
		}
		if err := w.cache.Set(key, []byte("1"), w.opts.DedupTTL); err != nil {
			w.logger.Warn("failed to record dedup hash", "error", err)
		}
	}

	body, err := json.Marshal(episode)
	if err != nil {
		return "", fmt.Errorf("failed to marshal episode: %w", err)
	}
	return w.queue.Send(ctx, body)
}

// Run drains the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		messages, err := w.queue.Receive(ctx, w.opts.Concurrency, w.opts.Visibility)
		if err != nil {
			w.logger.Error("queue receive failed", "error", err)
			messages = nil
		}
		w.refreshDepth(ctx)

		if len(messages) == 0 {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}

		for _, msg := range messages {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(msg *queue.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				w.process(ctx, msg)
			}(msg)
		}
	}
}

// ProcessOnce drains currently visible messages synchronously, mainly
// for tests and one-shot CLI runs.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	messages, err := w.queue.Receive(ctx, w.opts.Concurrency, w.opts.Visibility)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		w.process(ctx, msg)
	}
	w.refreshDepth(ctx)
	return len(messages), nil
}

func (w *Worker) process(ctx context.Context, msg *queue.Message) {
	var episode types.Episode
	if err := json.Unmarshal(msg.Body, &episode); err != nil {
		w.logger.Error("dropping undecodable message", "message_id", msg.ID, "error", err)
		w.ack(ctx, msg)
		w.countFailure()
		return
	}

	if w.opts.SerializeGroups {
		lock := w.groupLock(episode.GroupID)
		lock.Lock()
		defer lock.Unlock()
	}

	_, err := w.ingester.AddEpisode(ctx, episode)
	if err == nil {
		w.ack(ctx, msg)
		w.countSuccess()
		return
	}

	w.countFailure()
	if msg.Attempts >= w.opts.MaxAttempts {
		w.logger.Error("dropping episode after repeated failures",
			"message_id", msg.ID, "attempts", msg.Attempts, "error", err)
		w.ack(ctx, msg)
		return
	}

	if llm.IsRateLimitError(err) || llm.IsTransientError(err) || errors.Is(err, context.DeadlineExceeded) {
		// Leave it invisible; redelivery happens when the window lapses.
		w.logger.Warn("transient ingestion failure, will redeliver",
			"message_id", msg.ID, "attempts", msg.Attempts, "error", err)
		return
	}

	w.logger.Warn("ingestion failed, returning to queue",
		"message_id", msg.ID, "attempts", msg.Attempts, "error", err)
	if nackErr := w.queue.Nack(ctx, msg.ID); nackErr != nil {
		w.logger.Error("nack failed", "message_id", msg.ID, "error", nackErr)
	}
}

// Metrics returns a live throughput snapshot.
func (w *Worker) Metrics() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := w.processed + w.failed
	rate := 0.0
	if total > 0 {
		rate = float64(w.processed) / float64(total)
	}
	return Metrics{
		Processed:   w.processed,
		Failed:      w.failed,
		Visible:     w.depth.Visible,
		Invisible:   w.depth.Invisible,
		SuccessRate: rate,
		LastRefresh: w.depth.Refreshed,
	}
}

func (w *Worker) ack(ctx context.Context, msg *queue.Message) {
	if err := w.queue.Ack(ctx, msg.ID); err != nil {
		w.logger.Error("ack failed", "message_id", msg.ID, "error", err)
	}
}

func (w *Worker) countSuccess() {
	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
}

func (w *Worker) countFailure() {
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
}

func (w *Worker) refreshDepth(ctx context.Context) {
	stats, err := w.queue.Stats(ctx)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.depth = *stats
	w.mu.Unlock()
}

func (w *Worker) groupLock(groupID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.groupLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		w.groupLocks[groupID] = lock
	}
	return lock
}

func contentHashKey(episode types.Episode) string {
	sum := sha256.Sum256([]byte(episode.GroupID + "\x00" + episode.Content))
	return "episode:" + hex.EncodeToString(sum[:])
}
