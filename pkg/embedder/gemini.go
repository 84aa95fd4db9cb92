package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soundprediction/graphmem/pkg/utils"
)

// GeminiEmbedder implements Client for Google Gemini embeddings.
type GeminiEmbedder struct {
	config     *GeminiConfig
	httpClient *http.Client
}

// GeminiConfig extends Config with Gemini-specific settings.
type GeminiConfig struct {
	*Config
	APIKey string `json:"api_key"`
}

// NewGeminiEmbedder creates a new Gemini embedder.
func NewGeminiEmbedder(config *GeminiConfig) *GeminiEmbedder {
	if config.Config == nil {
		config.Config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if config.Model == "" {
		config.Model = "text-embedding-004"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.Dimensions == 0 {
		config.Dimensions = 768
	}

	return &GeminiEmbedder{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbedRequest struct {
	Model   string             `json:"model"`
	Content geminiEmbedContent `json:"content"`
}

type geminiEmbedContent struct {
	Parts []geminiEmbedPart `json:"parts"`
}

type geminiEmbedPart struct {
	Text string `json:"text"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Embed generates L2-normalized embeddings for the given texts.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float32
	for start := 0; start < len(texts); start += g.config.BatchSize {
		end := start + g.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (g *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + g.config.Model
	reqBody := geminiBatchRequest{}
	for _, text := range texts {
		reqBody.Requests = append(reqBody.Requests, geminiEmbedRequest{
			Model:   model,
			Content: geminiEmbedContent{Parts: []geminiEmbedPart{{Text: text}}},
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/%s:batchEmbedContents?key=%s",
		g.config.BaseURL, model, g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed geminiBatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini embedding error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Embeddings), len(texts))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, e := range parsed.Embeddings {
		out[i] = utils.NormalizeL2(e.Values)
	}
	return out, nil
}

// EmbedSingle generates an L2-normalized embedding for one text.
func (g *GeminiEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimensionality.
func (g *GeminiEmbedder) Dimensions() int {
	return g.config.Dimensions
}

// Close cleans up resources.
func (g *GeminiEmbedder) Close() error {
	return nil
}
