// Package config loads service configuration from files and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Centrality CentralityConfig `mapstructure:"centrality"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, color
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds graph database configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j, memgraph
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider               string  `mapstructure:"provider"` // openai, cerebras, ollama
	Model                  string  `mapstructure:"model"`
	SmallModel             string  `mapstructure:"small_model"`
	APIKey                 string  `mapstructure:"api_key"`
	BaseURL                string  `mapstructure:"base_url"`
	Temperature            float32 `mapstructure:"temperature"`
	MaxTokens              int     `mapstructure:"max_tokens"`
	EnableFallback         bool    `mapstructure:"enable_fallback"`
	FallbackProvider       string  `mapstructure:"fallback_provider"`
	FallbackAPIKey         string  `mapstructure:"fallback_api_key"`
	MaxReflexionIterations int     `mapstructure:"max_reflexion_iterations"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Dim      int    `mapstructure:"dim"`
}

// WorkerConfig holds ingestion worker configuration.
type WorkerConfig struct {
	Concurrency     int  `mapstructure:"concurrency"`
	SerializeGroups bool `mapstructure:"serialize_groups"`
	MaxAttempts     int  `mapstructure:"max_attempts"`
}

// QueueConfig holds ingestion queue configuration.
type QueueConfig struct {
	Backend string `mapstructure:"backend"` // memory, badger
	Path    string `mapstructure:"path"`
}

// JournalConfig holds the deferred-ingestion journal configuration.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CentralityConfig holds centrality calculation configuration.
type CentralityConfig struct {
	RemoteURL string `mapstructure:"remote_url"`
}

// TelemetryConfig holds anonymous usage telemetry configuration.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from an optional config file, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.driver", "neo4j")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "neo4j")

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4.1")
	viper.SetDefault("llm.small_model", "gpt-4.1-mini")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.max_reflexion_iterations", 0)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dim", 1536)

	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.serialize_groups", true)
	viper.SetDefault("worker.max_attempts", 3)

	viper.SetDefault("queue.backend", "memory")

	viper.SetDefault("journal.enabled", false)

	viper.SetDefault("telemetry.enabled", true)
}

// overrideWithEnv applies the environment variables recognized across
// deployments.
func overrideWithEnv(config *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
		config.Embedding.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("SMALL_MODEL_NAME"); model != "" {
		config.LLM.SmallModel = model
	}
	if model := os.Getenv("EMBEDDER_MODEL_NAME"); model != "" {
		config.Embedding.Model = model
	}

	if envBool("USE_CEREBRAS") {
		config.LLM.Provider = "cerebras"
		if apiKey := os.Getenv("CEREBRAS_API_KEY"); apiKey != "" {
			config.LLM.APIKey = apiKey
		}
		if model := os.Getenv("CEREBRAS_MODEL"); model != "" {
			config.LLM.Model = model
		}
		if model := os.Getenv("CEREBRAS_SMALL_MODEL"); model != "" {
			config.LLM.SmallModel = model
		}
	}
	if envBool("USE_OLLAMA") {
		config.LLM.Provider = "ollama"
		config.Embedding.Provider = "ollama"
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			config.LLM.BaseURL = baseURL
			config.Embedding.BaseURL = baseURL
		}
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			config.LLM.Model = model
		}
	}
	if temp := os.Getenv("LLM_TEMPERATURE"); temp != "" {
		if f, err := strconv.ParseFloat(temp, 32); err == nil {
			config.LLM.Temperature = float32(f)
		}
	}

	if envBool("USE_OLLAMA_EMBEDDINGS") {
		config.Embedding.Provider = "ollama"
	}
	// A dedicated endpoint serves embeddings from its own host, apart
	// from the chat provider.
	if envBool("USE_DEDICATED_EMBEDDING_ENDPOINT") || envBool("USE_OLLAMA_EMBEDDINGS") {
		if baseURL := os.Getenv("OLLAMA_EMBEDDING_BASE_URL"); baseURL != "" {
			config.Embedding.BaseURL = baseURL
		}
		if model := os.Getenv("OLLAMA_EMBEDDING_MODEL"); model != "" {
			config.Embedding.Model = model
		}
		if apiKey := os.Getenv("OLLAMA_EMBEDDING_API_KEY"); apiKey != "" {
			config.Embedding.APIKey = apiKey
		}
	}
	if envBool("ENABLE_FALLBACK") {
		config.LLM.EnableFallback = true
		config.LLM.FallbackProvider = "openai"
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			config.LLM.FallbackAPIKey = apiKey
		}
	}

	if limit := envInt("SEMAPHORE_LIMIT"); limit > 0 {
		config.Worker.Concurrency = limit
	}
	if iters := envInt("MAX_REFLEXION_ITERATIONS"); iters > 0 {
		config.LLM.MaxReflexionIterations = iters
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := envInt("SERVER_PORT"); port > 0 {
		config.Server.Port = port
	}

	if url := os.Getenv("CENTRALITY_SERVICE_URL"); url != "" {
		config.Centrality.RemoteURL = url
	}
	if envBool("USE_RUST_CENTRALITY") {
		if url := os.Getenv("RUST_CENTRALITY_URL"); url != "" {
			config.Centrality.RemoteURL = url
		}
	}
	if envBool("TELEMETRY_DISABLED") {
		config.Telemetry.Enabled = false
	}
}

func envBool(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes"
}

func envInt(name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return 0
	}
	return v
}

// Address returns the host:port the server listens on.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
