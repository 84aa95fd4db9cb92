package centrality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// RemoteConfig configures the remote centrality compute service.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	// StoreResults asks the service to persist scores itself.
	StoreResults bool
}

// RemoteClient offloads centrality computation to an external service.
// A circuit breaker shields the caller from a failing service; while the
// breaker is open, or on any remote error, the local engine computes
// instead.
type RemoteClient struct {
	config   RemoteConfig
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	fallback *Engine
	logger   *slog.Logger
}

// NewRemoteClient creates a remote client with a local engine fallback.
func NewRemoteClient(config RemoteConfig, fallback *Engine, logger *slog.Logger) *RemoteClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "centrality-remote",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &RemoteClient{
		config:   config,
		http:     &http.Client{Timeout: config.Timeout},
		breaker:  breaker,
		fallback: fallback,
		logger:   logger,
	}
}

type remoteRequest struct {
	GroupID      string `json:"group_id"`
	StoreResults bool   `json:"store_results"`
}

// Calculate computes all metrics for a group, remotely when the service
// is healthy, locally otherwise.
func (r *RemoteClient) Calculate(ctx context.Context, groupID string) (*Metrics, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.callRemote(ctx, groupID)
	})
	if err == nil {
		return result.(*Metrics), nil
	}

	r.logger.Warn("remote centrality unavailable, computing locally",
		"group_id", groupID, "error", err)
	if r.fallback == nil {
		return nil, fmt.Errorf("remote centrality failed with no fallback: %w", err)
	}
	return r.fallback.CalculateAll(ctx, groupID)
}

func (r *RemoteClient) callRemote(ctx context.Context, groupID string) (*Metrics, error) {
	body, err := json.Marshal(remoteRequest{GroupID: groupID, StoreResults: r.config.StoreResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+"/centrality/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentType(SchemaLatest))

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("centrality service returned %d: %s", resp.StatusCode, payload)
	}

	var metrics Metrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("failed to decode centrality response: %w", err)
	}
	return &metrics, nil
}
