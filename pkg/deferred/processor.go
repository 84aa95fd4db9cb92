package deferred

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
	"github.com/soundprediction/graphmem/pkg/worker"
)

// DefaultBatchSize bounds how many journaled episodes one replay pass
// ingests.
const DefaultBatchSize = 50

// Processor replays journaled episodes through the ingestion pipeline.
type Processor struct {
	journal   *Journal
	ingester  worker.Ingester
	batchSize int
	logger    *slog.Logger
}

// NewProcessor creates a replay processor over a journal.
func NewProcessor(journal *Journal, ingester worker.Ingester, batchSize int, logger *slog.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		journal:   journal,
		ingester:  ingester,
		batchSize: batchSize,
		logger:    logger,
	}
}

// JournalingIngester records episodes and their extraction results
// around a wrapped ingester. Episodes that fail ingestion stay pending
// in the journal for a later replay pass.
type JournalingIngester struct {
	journal *Journal
	inner   worker.Ingester
}

// NewJournalingIngester wraps inner with journaling.
func NewJournalingIngester(journal *Journal, inner worker.Ingester) *JournalingIngester {
	return &JournalingIngester{journal: journal, inner: inner}
}

// AddEpisode journals the raw episode, runs ingestion, then records the
// results. Journal write failures do not block ingestion.
func (j *JournalingIngester) AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error) {
	if episode.ID == "" {
		episode.ID = utils.GenerateUUID()
	}
	journalErr := j.journal.RecordEpisode(ctx, episode)

	result, err := j.inner.AddEpisode(ctx, episode)
	if err != nil {
		return nil, err
	}
	if journalErr == nil {
		if err := j.journal.RecordResults(ctx, result); err == nil {
			_ = j.journal.MarkProcessed(ctx, episode.ID)
		}
	}
	return result, nil
}

// ProcessBatch ingests up to one batch of pending episodes and returns
// how many were processed. Failed episodes stay pending for the next
// pass.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	episodes, err := p.journal.PendingEpisodes(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, episode := range episodes {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		result, err := p.ingester.AddEpisode(ctx, episode)
		if err != nil {
			p.logger.Warn("deferred ingestion failed",
				"episode_id", episode.ID, "group_id", episode.GroupID, "error", err)
			continue
		}
		if err := p.journal.RecordResults(ctx, result); err != nil {
			p.logger.Warn("failed to journal extraction results",
				"episode_id", episode.ID, "error", err)
		}
		if err := p.journal.MarkProcessed(ctx, episode.ID); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// Drain replays batches until the journal has no pending episodes or no
// progress is made.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.ProcessBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		pending, err := p.journal.PendingCount(ctx)
		if err != nil {
			return total, err
		}
		if pending == 0 {
			return total, nil
		}
		if n < p.batchSize {
			// The remainder failed this pass; stop instead of spinning.
			return total, fmt.Errorf("%d episodes still pending after replay", pending)
		}
	}
}
