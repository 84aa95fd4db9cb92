package llm

import (
	"fmt"
	"log/slog"
)

// FactoryConfig selects and parameterizes the LLM client stack.
type FactoryConfig struct {
	// Provider toggles. With EnableFallback set, every configured
	// provider joins the cascade in order Cerebras, Ollama, OpenAI.
	UseCerebras    bool
	UseOllama      bool
	EnableFallback bool

	OpenAIAPIKey   string
	OpenAIModel    string
	CerebrasAPIKey string
	CerebrasModel  string
	CerebrasSmall  string
	OllamaBaseURL  string
	OllamaModel    string

	Temperature float32
	MaxTokens   int
}

// NewClientFromConfig assembles the configured client stack: provider
// clients, fallback cascade when enabled, and the retry wrapper on the
// outside so backoff applies to whichever provider served the request.
func NewClientFromConfig(cfg FactoryConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base := func() *LLMConfig {
		c := NewLLMConfig()
		if cfg.Temperature > 0 {
			c.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = cfg.MaxTokens
		}
		return c
	}

	var clients []Client
	var names []string

	if cfg.UseCerebras {
		c := base().WithAPIKey(cfg.CerebrasAPIKey).WithModel(cfg.CerebrasModel).WithSmallModel(cfg.CerebrasSmall)
		client, err := NewCerebrasClient(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create cerebras client: %w", err)
		}
		clients = append(clients, client)
		names = append(names, "cerebras")
	}

	if cfg.UseOllama {
		client, err := NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, base())
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		clients = append(clients, client)
		names = append(names, "ollama")
	}

	if cfg.OpenAIAPIKey != "" && (len(clients) == 0 || cfg.EnableFallback) {
		client, err := NewOpenAIClient(base().WithAPIKey(cfg.OpenAIAPIKey).WithModel(cfg.OpenAIModel))
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		clients = append(clients, client)
		names = append(names, "openai")
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no llm provider configured")
	}

	var client Client = clients[0]
	if cfg.EnableFallback && len(clients) > 1 {
		fb, err := NewFallbackClient(clients, names, logger)
		if err != nil {
			return nil, err
		}
		client = fb
	}

	return NewRetryClient(client, logger), nil
}
