package crossencoder

import "context"

// RankedPassage represents a passage with its relevance score
type RankedPassage struct {
	Passage string  `json:"passage"`
	Score   float64 `json:"score"`
}

// Client ranks passages by relevance to a query. Implementations may be
// local cross-encoder models or LLM-backed scorers.
type Client interface {
	// Rank returns the passages sorted by descending relevance.
	Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error)

	// Close cleans up any resources used by the client
	Close() error
}

// Config holds common configuration for cross-encoder clients
type Config struct {
	// Model specifies the model to use for ranking
	Model string `json:"model,omitempty"`

	// BatchSize specifies how many passages to score per request
	BatchSize int `json:"batch_size,omitempty"`
}
