package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/graphmem/pkg/utils"
)

const (
	// DefaultOpenAIModel is the default embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"
	// DefaultDimensions is the dimensionality of the default model.
	DefaultDimensions = 1536
	// DefaultBatchSize bounds texts per request.
	DefaultBatchSize = 100
)

// OpenAIEmbedder implements Client against the OpenAI embeddings API or
// any OpenAI-compatible endpoint (Ollama, vLLM, dedicated embedding
// servers) when BaseURL is set.
type OpenAIEmbedder struct {
	client *openai.Client
	config *Config
}

// NewOpenAIEmbedder creates a new embedder.
func NewOpenAIEmbedder(config *Config) (*OpenAIEmbedder, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.Dimensions == 0 {
		config.Dimensions = DefaultDimensions
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}

	apiKey := config.APIKey
	if apiKey == "" {
		if config.BaseURL == "" {
			return nil, fmt.Errorf("embedder api key is required")
		}
		// Local endpoints usually accept any key.
		apiKey = "dummy-key"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
		if !strings.Contains(clientConfig.BaseURL, "/v1") {
			clientConfig.BaseURL += "/v1"
		}
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewOllamaEmbedder creates an embedder against a local Ollama instance.
func NewOllamaEmbedder(baseURL, model string) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return NewOpenAIEmbedder(&Config{
		Model:      model,
		BaseURL:    baseURL,
		Dimensions: 768,
	})
}

// Embed generates L2-normalized embeddings for the given texts, batching
// requests to the configured batch size.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.config.Model),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), end-start)
		}

		for _, item := range resp.Data {
			out = append(out, utils.NormalizeL2(item.Embedding))
		}
	}
	return out, nil
}

// EmbedSingle generates an L2-normalized embedding for one text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimensionality.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close cleans up resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
