package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// modelPrice is USD per 1M tokens.
type modelPrice struct {
	input  float64
	output float64
}

var defaultPrices = map[string]modelPrice{
	"gpt-4.1":      {input: 2.00, output: 8.00},
	"gpt-4.1-mini": {input: 0.40, output: 1.60},
	"gpt-4.1-nano": {input: 0.10, output: 0.40},
	"gpt-4o":       {input: 2.50, output: 10.00},
	"gpt-4o-mini":  {input: 0.15, output: 0.60},
	"o3":           {input: 2.00, output: 8.00},
	"o4-mini":      {input: 1.10, output: 4.40},

	"llama-3.3-70b": {input: 0.85, output: 1.20},
	"llama3.1-8b":   {input: 0.10, output: 0.10},
	"qwen-3-32b":    {input: 0.40, output: 0.80},
}

// EstimateCost returns the estimated USD spend for a request against
// the given model. Unknown models estimate at zero.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	key := strings.ToLower(model)
	price, ok := defaultPrices[key]
	if !ok {
		switch {
		case strings.HasPrefix(key, "gpt-4.1-mini"):
			price = defaultPrices["gpt-4.1-mini"]
		case strings.HasPrefix(key, "gpt-4.1"):
			price = defaultPrices["gpt-4.1"]
		case strings.HasPrefix(key, "gpt-4o-mini"):
			price = defaultPrices["gpt-4o-mini"]
		case strings.HasPrefix(key, "gpt-4"):
			price = defaultPrices["gpt-4o"]
		case strings.HasPrefix(key, "llama"):
			price = defaultPrices["llama3.1-8b"]
		default:
			return 0
		}
	}
	return float64(promptTokens)/1_000_000*price.input +
		float64(completionTokens)/1_000_000*price.output
}

// Usage holds accumulated token counts and estimated spend.
type Usage struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedUSD     float64 `json:"estimated_usd"`
}

// UsageTracker wraps a Client and accumulates token usage across
// requests. Structured-output calls are counted but their token usage
// is not reported by all providers.
type UsageTracker struct {
	inner  Client
	model  string
	logger *slog.Logger

	mu     sync.Mutex
	totals Usage
}

// NewUsageTracker wraps inner, pricing requests against model.
func NewUsageTracker(inner Client, model string, logger *slog.Logger) *UsageTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageTracker{inner: inner, model: model, logger: logger}
}

func (t *UsageTracker) Chat(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := t.inner.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	t.record(resp.TokensUsed)
	return resp, nil
}

func (t *UsageTracker) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	out, err := t.inner.ChatWithStructuredOutput(ctx, messages, schema, size)
	if err != nil {
		return nil, err
	}
	t.record(nil)
	return out, nil
}

func (t *UsageTracker) record(u *TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.Calls++
	if u == nil {
		return
	}
	t.totals.PromptTokens += u.PromptTokens
	t.totals.CompletionTokens += u.CompletionTokens
	t.totals.EstimatedUSD += EstimateCost(t.model, u.PromptTokens, u.CompletionTokens)
}

// Totals returns a snapshot of the accumulated usage.
func (t *UsageTracker) Totals() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Close logs the usage summary and closes the wrapped client.
func (t *UsageTracker) Close() error {
	totals := t.Totals()
	if totals.Calls > 0 {
		t.logger.Info("llm usage",
			"calls", totals.Calls,
			"prompt_tokens", totals.PromptTokens,
			"completion_tokens", totals.CompletionTokens,
			"estimated_usd", totals.EstimatedUSD)
	}
	return t.inner.Close()
}
