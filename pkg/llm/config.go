package llm

// ModelSize selects the model tier for a request.
type ModelSize string

const (
	// ModelSizeSmall selects a fast model for simple prompts
	// (deduplication, date extraction).
	ModelSizeSmall ModelSize = "small"
	// ModelSizeMedium selects the main model for extraction and
	// summarization.
	ModelSizeMedium ModelSize = "medium"
)

// Default configuration values
const (
	DefaultMaxTokens   = 8192
	DefaultTemperature = 1.0
)

// LLMConfig holds configuration for LLM clients.
type LLMConfig struct {
	// APIKey is the authentication key for the LLM API
	APIKey string `json:"api_key,omitempty"`

	// Model is the main model used for extraction prompts
	Model string `json:"model,omitempty"`

	// SmallModel is used for simpler prompts; falls back to Model when empty
	SmallModel string `json:"small_model,omitempty"`

	// BaseURL is the base URL of the LLM API service
	BaseURL string `json:"base_url,omitempty"`

	// Temperature controls randomness in generation (0.0 to 2.0)
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`
}

// NewLLMConfig creates a new LLMConfig with default values
func NewLLMConfig() *LLMConfig {
	return &LLMConfig{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// ModelFor returns the model to use for the requested size.
func (c *LLMConfig) ModelFor(size ModelSize) string {
	if size == ModelSizeSmall && c.SmallModel != "" {
		return c.SmallModel
	}
	return c.Model
}

// WithAPIKey sets the API key
func (c *LLMConfig) WithAPIKey(apiKey string) *LLMConfig {
	c.APIKey = apiKey
	return c
}

// WithModel sets the main model
func (c *LLMConfig) WithModel(model string) *LLMConfig {
	c.Model = model
	return c
}

// WithSmallModel sets the small model
func (c *LLMConfig) WithSmallModel(smallModel string) *LLMConfig {
	c.SmallModel = smallModel
	return c
}

// WithBaseURL sets the base URL
func (c *LLMConfig) WithBaseURL(baseURL string) *LLMConfig {
	c.BaseURL = baseURL
	return c
}

// WithTemperature sets the temperature
func (c *LLMConfig) WithTemperature(temperature float32) *LLMConfig {
	c.Temperature = temperature
	return c
}

// WithMaxTokens sets the max tokens
func (c *LLMConfig) WithMaxTokens(maxTokens int) *LLMConfig {
	c.MaxTokens = maxTokens
	return c
}
