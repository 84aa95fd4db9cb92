package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts responses for cascade and retry tests.
type fakeClient struct {
	errs    []error
	content string
	usage   *TokenUsage
	calls   int
}

func (f *fakeClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &Response{Content: f.content, TokensUsed: f.usage}, nil
}

func (f *fakeClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return json.RawMessage(f.content), nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) next() error {
	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func TestStrictifySchema(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
			"entities": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id": map[string]interface{}{"type": "integer"},
					},
				},
			},
		},
	}

	strict := StrictifySchema(schema)

	assert.Equal(t, false, strict["additionalProperties"])
	assert.Equal(t, []string{"entities", "name"}, strict["required"])

	items := strict["properties"].(map[string]interface{})["entities"].(map[string]interface{})["items"].(map[string]interface{})
	assert.Equal(t, false, items["additionalProperties"])
	assert.Equal(t, []string{"id"}, items["required"])

	// Input is not mutated.
	_, mutated := schema["additionalProperties"]
	assert.False(t, mutated)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(&RateLimitError{Message: "slow down"}))
	assert.True(t, IsRateLimitError(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for project")))
	assert.False(t, IsRateLimitError(errors.New("invalid api key")))
	assert.False(t, IsRateLimitError(nil))
}

func TestFallbackCascadesOnRateLimit(t *testing.T) {
	primary := &fakeClient{errs: []error{&RateLimitError{Message: "429"}}}
	secondary := &fakeClient{content: "ok"}

	fb, err := NewFallbackClient([]Client{primary, secondary}, []string{"primary", "secondary"}, nil)
	require.NoError(t, err)

	resp, err := fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// Primary is benched: next call goes straight to secondary.
	resp, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, secondary.calls)
}

func TestFallbackPropagatesPermanentErrors(t *testing.T) {
	primary := &fakeClient{errs: []error{errors.New("invalid api key")}}
	secondary := &fakeClient{content: "ok"}

	fb, err := NewFallbackClient([]Client{primary, secondary}, nil, nil)
	require.NoError(t, err)

	_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackReprobesAfterRecovery(t *testing.T) {
	primary := &fakeClient{errs: []error{&RateLimitError{Message: "429"}}, content: "primary"}
	secondary := &fakeClient{content: "secondary"}

	fb, err := NewFallbackClient([]Client{primary, secondary}, nil, nil)
	require.NoError(t, err)
	fb.recovery = time.Millisecond

	_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	resp, err := fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Content)
}

func TestFallbackBenchesAfterRepeatedTransientFailures(t *testing.T) {
	primary := &fakeClient{errs: []error{
		&TransientError{Message: "timeout"},
		&TransientError{Message: "timeout"},
		&TransientError{Message: "timeout"},
	}}
	secondary := &fakeClient{content: "ok"}

	fb, err := NewFallbackClient([]Client{primary, secondary}, []string{"primary", "secondary"}, nil)
	require.NoError(t, err)

	// The first two transient failures propagate without advancing the
	// cascade.
	for i := 0; i < 2; i++ {
		_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
		require.Error(t, err)
	}
	assert.Equal(t, 0, secondary.calls)

	// The third consecutive failure benches the primary and the request
	// lands on the secondary.
	resp, err := fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// Benched: the next call skips the primary entirely.
	_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 2, secondary.calls)
}

func TestFallbackSuccessResetsTransientStreak(t *testing.T) {
	primary := &fakeClient{errs: []error{
		&TransientError{Message: "timeout"},
		&TransientError{Message: "timeout"},
		nil,
		&TransientError{Message: "timeout"},
	}, content: "primary"}
	secondary := &fakeClient{content: "secondary"}

	fb, err := NewFallbackClient([]Client{primary, secondary}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
		require.Error(t, err)
	}

	// A success clears the streak, so the next transient failure is one
	// of a fresh run and does not bench the primary.
	resp, err := fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Content)

	_, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.Error(t, err)

	resp, err = fb.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Content)
	assert.Equal(t, 0, secondary.calls)
}

func TestRetryClientRetriesTransient(t *testing.T) {
	inner := &fakeClient{
		errs:    []error{&TransientError{Message: "timeout"}, &TransientError{Message: "timeout"}},
		content: "done",
	}
	r := NewRetryClient(inner, nil)
	r.initialBackoff = time.Millisecond

	resp, err := r.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryClientStopsOnPermanent(t *testing.T) {
	inner := &fakeClient{errs: []error{errors.New("model not found")}}
	r := NewRetryClient(inner, nil)
	r.initialBackoff = time.Millisecond

	_, err := r.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRepairJSON(t *testing.T) {
	valid, err := RepairJSON(json.RawMessage(`{"a": 1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(valid))

	repaired, err := RepairJSON(json.RawMessage(`{"a": 1,}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(repaired))
}

func TestCerebrasPacesRequests(t *testing.T) {
	c := &CerebrasClient{minInterval: 20 * time.Millisecond}

	start := time.Now()
	require.NoError(t, c.waitTurn(context.Background()))
	require.NoError(t, c.waitTurn(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCerebrasWaitTurnHonorsContext(t *testing.T) {
	c := &CerebrasClient{minInterval: time.Minute}
	require.NoError(t, c.waitTurn(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := c.waitTurn(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModelFor(t *testing.T) {
	cfg := NewLLMConfig().WithModel("big").WithSmallModel("small")
	assert.Equal(t, "big", cfg.ModelFor(ModelSizeMedium))
	assert.Equal(t, "small", cfg.ModelFor(ModelSizeSmall))

	cfg = NewLLMConfig().WithModel("big")
	assert.Equal(t, "big", cfg.ModelFor(ModelSizeSmall))
}

func TestUsageTrackerAccumulates(t *testing.T) {
	inner := &fakeClient{
		content: "ok",
		usage:   &TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
	}
	tracker := NewUsageTracker(inner, "gpt-4.1-mini", nil)

	_, err := tracker.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	_, err = tracker.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)

	totals := tracker.Totals()
	assert.Equal(t, 2, totals.Calls)
	assert.Equal(t, 2000, totals.PromptTokens)
	assert.Equal(t, 1000, totals.CompletionTokens)
	assert.InDelta(t, 2*(0.001*0.40+0.0005*1.60), totals.EstimatedUSD, 1e-9)
	require.NoError(t, tracker.Close())
}

func TestEstimateCostUnknownModel(t *testing.T) {
	assert.Zero(t, EstimateCost("some-local-model", 1_000_000, 1_000_000))
	assert.Greater(t, EstimateCost("gpt-4.1-2025-04-14", 1_000_000, 0), 0.0)
}
