package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/llm"
)

func manualObs(score float64, at time.Time) Observation {
	return Observation{Score: score, Timestamp: at, Method: MethodManual}
}

func TestRecordEMA(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{ID: "m1"}

	r.Update(manualObs(1.0, now), DefaultAlpha)
	assert.Equal(t, 1.0, r.Score)

	r.Update(manualObs(0.0, now), DefaultAlpha)
	assert.InDelta(t, 0.7, r.Score, 1e-9)

	r.Update(manualObs(0.0, now), DefaultAlpha)
	assert.InDelta(t, 0.49, r.Score, 1e-9)
	assert.Equal(t, 3, r.UsageCount)
}

func TestRecordObservationHistory(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{ID: "m1"}

	r.Update(Observation{Score: 0.9, QueryID: "q1", Timestamp: now, Method: MethodLLM}, DefaultAlpha)
	r.Update(Observation{Score: 0.2, QueryID: "q2", Timestamp: now.Add(time.Minute), Method: MethodHeuristic}, DefaultAlpha)
	r.Update(Observation{Score: 0.7, QueryID: "q3", Timestamp: now.Add(2 * time.Minute), Method: MethodManual}, DefaultAlpha)

	require.Len(t, r.Observations, 3)
	assert.Equal(t, "q1", r.Observations[0].QueryID)
	assert.Equal(t, MethodHeuristic, r.Observations[1].Method)
	assert.Equal(t, now.Add(2*time.Minute), r.Observations[2].Timestamp)

	// Every observation counts as a use; only the ones at or above the
	// high-relevance threshold count as successful.
	assert.Equal(t, 3, r.UsageCount)
	assert.Equal(t, 2, r.SuccessfulUses)
}

func TestRecordCapsObservationHistory(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{ID: "m1"}
	for i := 0; i < maxObservations+10; i++ {
		r.Update(manualObs(0.5, now.Add(time.Duration(i)*time.Second)), DefaultAlpha)
	}
	assert.Len(t, r.Observations, maxObservations)
	assert.Equal(t, maxObservations+10, r.UsageCount)
	// The oldest entries fall off the front.
	assert.Equal(t, now.Add(10*time.Second), r.Observations[0].Timestamp)
}

func TestEffectiveScoreDecay(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{ID: "m1"}
	r.Update(manualObs(0.8, now.Add(-30*24*time.Hour)), DefaultAlpha)

	// One half-life later the score halves.
	assert.InDelta(t, 0.4, r.EffectiveScore(now, 30), 1e-6)
	// Fresh records keep their score.
	fresh := &Record{ID: "m2"}
	fresh.Update(manualObs(0.8, now), DefaultAlpha)
	assert.InDelta(t, 0.8, fresh.EffectiveScore(now, 30), 1e-6)
	// Unknown records score zero.
	assert.Equal(t, 0.0, (&Record{}).EffectiveScore(now, 30))
}

func TestHeuristicScorerBounds(t *testing.T) {
	ctx := context.Background()
	scorer := HeuristicScorer{}

	// No overlap stays at the floor.
	low, err := scorer.Score(ctx, "quantum computing", "gardening tips for spring", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, low, 1e-9)

	// Identical text hits the overlap ceiling.
	high, err := scorer.Score(ctx, "alice lives paris", "alice lives paris", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, high, 1e-9)

	// Quoting the memory in the response adds the usage boost.
	boosted, err := scorer.Score(ctx, "alice lives paris", "alice lives paris", "I recall alice lives paris today")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, boosted, 1e-9)
}

func TestHeuristicScorerCapsAtOne(t *testing.T) {
	scorer := HeuristicScorer{}
	score, err := scorer.Score(context.Background(),
		"alice definitely lives paris france",
		"alice definitely lives paris france",
		"alice definitely lives paris france")
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 1.0)
	assert.InDelta(t, 0.9, score, 1e-9)
}

type scoringLLM struct {
	raw string
	err error
}

func (s *scoringLLM) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	return nil, errors.New("unused")
}

func (s *scoringLLM) ChatWithStructuredOutput(ctx context.Context, messages []llm.Message, schema map[string]interface{}, size llm.ModelSize) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.raw), nil
}

func (s *scoringLLM) Close() error { return nil }

func TestLLMScorerClipsAndDefaults(t *testing.T) {
	ctx := context.Background()

	score, err := NewLLMScorer(&scoringLLM{raw: `{"relevance_score": 1.7, "reasoning": "x"}`}).Score(ctx, "q", "m", "r")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = NewLLMScorer(&scoringLLM{err: errors.New("down")}).Score(ctx, "q", "m", "r")
	require.NoError(t, err)
	assert.Equal(t, NeutralScore, score)

	score, err = NewLLMScorer(&scoringLLM{raw: `not json`}).Score(ctx, "q", "m", "r")
	require.NoError(t, err)
	assert.Equal(t, NeutralScore, score)
}

func TestHybridScorerMean(t *testing.T) {
	scorer := NewHybridScorer(&scoringLLM{raw: `{"relevance_score": 0.9, "reasoning": "x"}`})
	score, err := scorer.Score(context.Background(), "alice lives paris", "alice lives paris", "")
	require.NoError(t, err)
	assert.InDelta(t, (0.7+0.9)/2, score, 1e-9)
}

func TestTrackerFeedbackAndFusion(t *testing.T) {
	tracker := NewTracker()
	tracker.Feedback("useful", 1.0)
	tracker.Feedback("useless", 0.05)

	assert.Greater(t, tracker.EffectiveScore("useful"), tracker.EffectiveScore("useless"))
	assert.Equal(t, 0.0, tracker.EffectiveScore("unknown"))

	// "useful" ranks last in retrieval but its feedback pulls it up.
	fused := tracker.FuseWithFeedback([]string{"a", "useless", "useful"})
	require.Len(t, fused, 3)
	posUseful := indexOf(fused, "useful")
	assert.Less(t, posUseful, 2)
}

func TestTrackerFusionWithoutFeedbackKeepsOrder(t *testing.T) {
	tracker := NewTracker()
	in := []string{"a", "b", "c"}
	assert.Equal(t, in, tracker.FuseWithFeedback(in))
}

func TestTrackerClipsFeedback(t *testing.T) {
	tracker := NewTracker()
	tracker.Feedback("m", 5.0)
	record := tracker.Get("m")
	require.NotNil(t, record)
	assert.Equal(t, 1.0, record.Score)
	assert.False(t, math.IsNaN(record.Score))
}

func TestTrackerObserveLabelsAndStamps(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe("m", Observation{Score: 0.8, QueryID: "q1", Method: MethodLLM})
	tracker.Observe("m", Observation{Score: 0.4})

	record := tracker.Get("m")
	require.NotNil(t, record)
	require.Len(t, record.Observations, 2)
	assert.Equal(t, MethodLLM, record.Observations[0].Method)
	assert.Equal(t, "q1", record.Observations[0].QueryID)
	assert.False(t, record.Observations[0].Timestamp.IsZero())
	// Unlabeled observations default to manual.
	assert.Equal(t, MethodManual, record.Observations[1].Method)
	assert.Equal(t, 2, record.UsageCount)
	assert.Equal(t, 1, record.SuccessfulUses)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
