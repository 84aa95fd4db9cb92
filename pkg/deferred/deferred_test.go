package deferred

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/types"
)

type replayIngester struct {
	episodes []types.Episode
	failFor  map[string]bool
}

func (r *replayIngester) AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error) {
	if r.failFor[episode.ID] {
		return nil, errors.New("provider unavailable")
	}
	r.episodes = append(r.episodes, episode)
	return &types.AddEpisodeResults{Episode: &types.Node{
		ID:      episode.ID,
		Type:    types.EpisodicNodeType,
		GroupID: episode.GroupID,
		Content: episode.Content,
	}}, nil
}

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	ref := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	err := j.RecordEpisode(ctx, types.Episode{
		ID:        "ep-1",
		Name:      "chat turn",
		Content:   "Alice moved to Paris.",
		Source:    types.MessageSource,
		Reference: ref,
		GroupID:   "g1",
		Metadata:  map[string]interface{}{"channel": "support"},
	})
	require.NoError(t, err)

	pending, err := j.PendingEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ep-1", pending[0].ID)
	assert.Equal(t, "Alice moved to Paris.", pending[0].Content)
	assert.Equal(t, types.MessageSource, pending[0].Source)
	assert.True(t, ref.Equal(pending[0].Reference))
	assert.Equal(t, "support", pending[0].Metadata["channel"])

	require.NoError(t, j.MarkProcessed(ctx, "ep-1"))
	count, err := j.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJournalPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	require.NoError(t, j.RecordEpisode(ctx, types.Episode{ID: "first", GroupID: "g1", Content: "a"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, j.RecordEpisode(ctx, types.Episode{ID: "second", GroupID: "g1", Content: "b"}))

	pending, err := j.PendingEpisodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "first", pending[0].ID)
}

func TestProcessorReplaysAndMarks(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	for _, id := range []string{"ep-1", "ep-2", "ep-3"} {
		require.NoError(t, j.RecordEpisode(ctx, types.Episode{ID: id, GroupID: "g1", Content: id}))
	}

	ingester := &replayIngester{}
	processor := NewProcessor(j, ingester, 10, nil)

	n, err := processor.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, ingester.episodes, 3)

	count, err := j.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcessorKeepsFailedPending(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	require.NoError(t, j.RecordEpisode(ctx, types.Episode{ID: "good", GroupID: "g1", Content: "a"}))
	require.NoError(t, j.RecordEpisode(ctx, types.Episode{ID: "bad", GroupID: "g1", Content: "b"}))

	ingester := &replayIngester{failFor: map[string]bool{"bad": true}}
	processor := NewProcessor(j, ingester, 10, nil)

	n, err := processor.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := j.PendingEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bad", pending[0].ID)
}

func TestJournalingIngesterMarksOnSuccess(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	inner := &replayIngester{}
	ingester := NewJournalingIngester(j, inner)

	result, err := ingester.AddEpisode(ctx, types.Episode{GroupID: "g1", Content: "Alice moved."})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Episode.ID)

	count, err := j.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJournalingIngesterKeepsFailedPending(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	inner := &replayIngester{failFor: map[string]bool{"ep-fail": true}}
	ingester := NewJournalingIngester(j, inner)

	_, err := ingester.AddEpisode(ctx, types.Episode{ID: "ep-fail", GroupID: "g1", Content: "b"})
	require.Error(t, err)

	pending, err := j.PendingEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ep-fail", pending[0].ID)
}
