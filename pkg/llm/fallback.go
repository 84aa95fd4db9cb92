package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRecoveryInterval is how long a benched client stays out
	// before the cascade probes it again.
	DefaultRecoveryInterval = 5 * time.Minute
	// DefaultBenchThreshold benches a client after this many consecutive
	// transient failures.
	DefaultBenchThreshold = 3
)

// FallbackClient cascades requests across an ordered list of clients.
// A client that rate-limits, or fails transiently benchThreshold times
// in a row, gets benched and the next one takes over; benched clients
// are re-probed after a cool-down so the cascade drifts back to its
// preferred client. Permanent errors propagate without advancing the
// cascade.
type FallbackClient struct {
	clients        []Client
	names          []string
	logger         *slog.Logger
	recovery       time.Duration
	benchThreshold int

	mu       sync.Mutex
	benched  map[int]time.Time
	failures map[int]int
}

// NewFallbackClient builds a cascade over clients in priority order.
// Names are used for logging and must parallel clients.
func NewFallbackClient(clients []Client, names []string, logger *slog.Logger) (*FallbackClient, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("fallback client requires at least one client")
	}
	if len(names) != len(clients) {
		names = make([]string, len(clients))
		for i := range names {
			names[i] = fmt.Sprintf("client-%d", i)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClient{
		clients:        clients,
		names:          names,
		logger:         logger,
		recovery:       DefaultRecoveryInterval,
		benchThreshold: DefaultBenchThreshold,
		benched:        make(map[int]time.Time),
		failures:       make(map[int]int),
	}, nil
}

// available returns the indexes eligible for the next request, unbenching
// any client whose cool-down has elapsed.
func (f *FallbackClient) available() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var out []int
	for i := range f.clients {
		if benchedAt, ok := f.benched[i]; ok {
			if now.Sub(benchedAt) < f.recovery {
				continue
			}
			delete(f.benched, i)
			f.logger.Info("probing recovered llm client", "client", f.names[i])
		}
		out = append(out, i)
	}
	return out
}

func (f *FallbackClient) bench(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.benched[i] = time.Now()
	delete(f.failures, i)
}

func (f *FallbackClient) clearFailures(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, i)
}

// noteTransient counts a consecutive transient failure and reports
// whether the client crossed the bench threshold.
func (f *FallbackClient) noteTransient(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[i]++
	return f.failures[i] >= f.benchThreshold
}

func (f *FallbackClient) do(ctx context.Context, call func(Client) error) error {
	candidates := f.available()
	if len(candidates) == 0 {
		// Everyone is benched; try the primary anyway rather than fail
		// without a request.
		candidates = []int{0}
	}

	var lastErr error
	for _, i := range candidates {
		err := call(f.clients[i])
		if err == nil {
			f.clearFailures(i)
			return nil
		}
		switch {
		case IsRateLimitError(err):
			f.logger.Warn("llm client rate limited, falling back",
				"client", f.names[i], "error", err)
			f.bench(i)
		case IsTransientError(err):
			if !f.noteTransient(i) {
				return err
			}
			f.logger.Warn("llm client failing repeatedly, falling back",
				"client", f.names[i], "error", err)
			f.bench(i)
		default:
			f.clearFailures(i)
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("all llm clients unavailable: %w", lastErr)
}

// Chat runs the cascade for a chat completion.
func (f *FallbackClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	var resp *Response
	err := f.do(ctx, func(c Client) error {
		var callErr error
		resp, callErr = c.Chat(ctx, messages)
		return callErr
	})
	return resp, err
}

// ChatWithStructuredOutput runs the cascade for a structured completion.
func (f *FallbackClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	var raw json.RawMessage
	err := f.do(ctx, func(c Client) error {
		var callErr error
		raw, callErr = c.ChatWithStructuredOutput(ctx, messages, schema, size)
		return callErr
	})
	return raw, err
}

// Close closes every client in the cascade.
func (f *FallbackClient) Close() error {
	var firstErr error
	for _, c := range f.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
