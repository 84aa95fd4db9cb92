package embedder

import (
	"fmt"
)

// FactoryConfig selects the embedding backend.
type FactoryConfig struct {
	// UseOllama routes embeddings to a local Ollama instance.
	UseOllama bool
	// UseDedicatedEndpoint routes embeddings to a separate
	// OpenAI-compatible embedding server, independent of the chat LLM.
	UseDedicatedEndpoint bool
	// UseGemini routes embeddings to the Gemini API.
	UseGemini bool

	OpenAIAPIKey string
	GeminiAPIKey string
	BaseURL      string
	Model        string
	Dimensions   int
}

// NewClientFromConfig builds the configured embedder. Precedence follows
// the explicit toggles; OpenAI is the default.
func NewClientFromConfig(cfg FactoryConfig) (Client, error) {
	switch {
	case cfg.UseOllama:
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model)
	case cfg.UseDedicatedEndpoint:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("dedicated embedding endpoint requires a base URL")
		}
		return NewOpenAIEmbedder(&Config{
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case cfg.UseGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini embedder requires an api key")
		}
		return NewGeminiEmbedder(&GeminiConfig{
			Config: &Config{Model: cfg.Model, Dimensions: cfg.Dimensions},
			APIKey: cfg.GeminiAPIKey,
		}), nil
	default:
		return NewOpenAIEmbedder(&Config{
			Model:      cfg.Model,
			APIKey:     cfg.OpenAIAPIKey,
			Dimensions: cfg.Dimensions,
		})
	}
}
