package graphmem

import (
	"fmt"
	"log/slog"

	graphmemlib "github.com/soundprediction/graphmem"
	"github.com/soundprediction/graphmem/pkg/cache"
	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/embedder"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/queue"
	"github.com/soundprediction/graphmem/pkg/worker"
)

// newGraphDriver connects to the configured graph database.
func newGraphDriver(cfg *config.DatabaseConfig) (driver.GraphDriver, error) {
	switch cfg.Driver {
	case "", "neo4j":
		return driver.NewNeo4jDriver(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	case "memgraph":
		return driver.NewMemgraphDriver(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// newLLMClient builds the LLM stack, or returns nil when no provider is
// configured.
func newLLMClient(cfg *config.LLMConfig, log *slog.Logger) (llm.Client, error) {
	factory := llm.FactoryConfig{
		UseCerebras:    cfg.Provider == "cerebras",
		UseOllama:      cfg.Provider == "ollama",
		EnableFallback: cfg.EnableFallback,
		OpenAIAPIKey:   cfg.APIKey,
		OpenAIModel:    cfg.Model,
		CerebrasAPIKey: cfg.APIKey,
		CerebrasModel:  cfg.Model,
		CerebrasSmall:  cfg.SmallModel,
		OllamaBaseURL:  cfg.BaseURL,
		OllamaModel:    cfg.Model,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
	}
	if cfg.EnableFallback && cfg.FallbackAPIKey != "" {
		factory.OpenAIAPIKey = cfg.FallbackAPIKey
	}
	if cfg.Provider == "openai" && cfg.APIKey == "" {
		return nil, nil
	}
	client, err := llm.NewClientFromConfig(factory, log)
	if err != nil {
		return nil, err
	}
	return llm.NewUsageTracker(client, cfg.Model, log), nil
}

// newEmbedderClient builds the embedding client, or nil when
// unconfigured.
func newEmbedderClient(cfg *config.EmbeddingConfig) (embedder.Client, error) {
	if cfg.Provider != "ollama" && cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, nil
	}
	return embedder.NewClientFromConfig(embedder.FactoryConfig{
		UseOllama:            cfg.Provider == "ollama",
		UseDedicatedEndpoint: cfg.Provider != "ollama" && cfg.BaseURL != "",
		OpenAIAPIKey:         cfg.APIKey,
		BaseURL:              cfg.BaseURL,
		Model:                cfg.Model,
		Dimensions:           cfg.Dim,
	})
}

// newMemoryClient wires the full ingestion and retrieval client.
func newMemoryClient(cfg *config.Config, graph driver.GraphDriver, log *slog.Logger) (*graphmemlib.Client, error) {
	llmClient, err := newLLMClient(&cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	embedderClient, err := newEmbedderClient(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %w", err)
	}
	return graphmemlib.NewClient(graph, llmClient, embedderClient, &graphmemlib.Config{
		MaxReflexionIterations: cfg.LLM.MaxReflexionIterations,
		Logger:                 log,
	}), nil
}

// newQueue builds the configured ingestion queue.
func newQueue(cfg *config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return queue.NewMemoryQueue(), nil
	case "badger":
		return queue.NewBadgerQueue(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// newWorker assembles the queue worker with submission dedup.
func newWorker(cfg *config.Config, q queue.Queue, ingester worker.Ingester, log *slog.Logger) *worker.Worker {
	return worker.New(q, ingester, cache.NewMemoryCache(), worker.Options{
		Concurrency:     cfg.Worker.Concurrency,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		SerializeGroups: cfg.Worker.SerializeGroups,
	}, log)
}
