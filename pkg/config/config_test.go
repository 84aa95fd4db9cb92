package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "neo4j", cfg.Database.Driver)
	assert.Equal(t, "bolt://localhost:7687", cfg.Database.URI)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SEMAPHORE_LIMIT", "4")
	t.Setenv("MAX_REFLEXION_ITERATIONS", "2")
	t.Setenv("TELEMETRY_DISABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.Database.URI)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.LLM.MaxReflexionIterations)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestCerebrasSwitch(t *testing.T) {
	t.Setenv("USE_CEREBRAS", "1")
	t.Setenv("CEREBRAS_API_KEY", "csk-test")
	t.Setenv("ENABLE_FALLBACK", "true")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "cerebras", cfg.LLM.Provider)
	assert.Equal(t, "csk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.LLM.EnableFallback)
	assert.Equal(t, "openai", cfg.LLM.FallbackProvider)
	assert.Equal(t, "sk-fallback", cfg.LLM.FallbackAPIKey)
}

func TestDedicatedEmbeddingEndpoint(t *testing.T) {
	t.Setenv("USE_OLLAMA_EMBEDDINGS", "true")
	t.Setenv("OLLAMA_EMBEDDING_BASE_URL", "http://embed:11434/v1")
	t.Setenv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("OLLAMA_EMBEDDING_API_KEY", "ollama")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "http://embed:11434/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "ollama", cfg.Embedding.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestServerAddress(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 9090}
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
}
