package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

const (
	// DefaultMaxRetries bounds retry attempts on transient failures.
	DefaultMaxRetries = 3
	// DefaultInitialBackoff is doubled after each failed attempt.
	DefaultInitialBackoff = 2 * time.Second
)

// RetryClient wraps another client with exponential backoff on transient
// and rate-limit failures, and one JSON repair pass when structured output
// comes back malformed. Permanent errors return immediately.
type RetryClient struct {
	inner          Client
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewRetryClient wraps inner with the default retry policy.
func NewRetryClient(inner Client, logger *slog.Logger) *RetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{
		inner:          inner,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		logger:         logger,
	}
}

func (r *RetryClient) retry(ctx context.Context, op string, call func() error) error {
	backoff := r.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Debug("retrying llm request",
				"op", op, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !IsTransientError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, r.maxRetries, lastErr)
}

// Chat retries transient chat failures.
func (r *RetryClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	var resp *Response
	err := r.retry(ctx, "chat", func() error {
		var callErr error
		resp, callErr = r.inner.Chat(ctx, messages)
		return callErr
	})
	return resp, err
}

// ChatWithStructuredOutput retries transient failures and, when the final
// payload is not valid JSON, attempts a single repair pass before giving up.
func (r *RetryClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.retry(ctx, "structured output", func() error {
		var callErr error
		raw, callErr = r.inner.ChatWithStructuredOutput(ctx, messages, schema, size)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return RepairJSON(raw)
}

// Close closes the wrapped client.
func (r *RetryClient) Close() error {
	return r.inner.Close()
}

// RepairJSON validates raw as JSON and, when invalid, runs it through the
// jsonrepair pass models frequently need (trailing commas, unquoted keys,
// truncated fences).
func RepairJSON(raw json.RawMessage) (json.RawMessage, error) {
	if json.Valid(raw) {
		return raw, nil
	}
	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to repair llm json output: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("llm output unparseable after repair")
	}
	return json.RawMessage(repaired), nil
}
