package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatibleClient implements the Client interface for any service
// that speaks the OpenAI API: Ollama, LocalAI, vLLM, Text Generation
// Inference and friends. Structured output degrades to JSON object mode
// since most of these services reject the json_schema response format.
type OpenAICompatibleClient struct {
	client *openai.Client
	config *LLMConfig
}

// NewOpenAICompatibleClient creates a client against an OpenAI-compatible
// endpoint. The apiKey may be empty for services without authentication;
// "/v1" is appended when the base URL carries no API path.
func NewOpenAICompatibleClient(baseURL, apiKey, model string, config *LLMConfig) (*OpenAICompatibleClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("baseURL must use http:// or https:// scheme")
	}

	if config == nil {
		config = NewLLMConfig()
	}
	if model != "" {
		config.Model = model
	}
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	if !hasAPIPath(baseURL) {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}

	return &OpenAICompatibleClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewOllamaClient creates a client for a local Ollama instance.
func NewOllamaClient(baseURL, model string, config *LLMConfig) (*OpenAICompatibleClient, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return NewOpenAICompatibleClient(baseURL, "", model, config)
}

// NewLocalAIClient creates a client for a LocalAI instance.
func NewLocalAIClient(baseURL, apiKey, model string, config *LLMConfig) (*OpenAICompatibleClient, error) {
	return NewOpenAICompatibleClient(baseURL, apiKey, model, config)
}

// NewVLLMClient creates a client for a vLLM server.
func NewVLLMClient(baseURL, model string, config *LLMConfig) (*OpenAICompatibleClient, error) {
	return NewOpenAICompatibleClient(baseURL, "", model, config)
}

// Chat sends a chat completion request.
func (c *OpenAICompatibleClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("openai-compatible chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "no choices returned"}
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		response.TokensUsed = &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return response, nil
}

// ChatWithStructuredOutput requests JSON object mode and embeds the schema
// in a trailing system message, the widest-compatible structured output
// these services support.
func (c *OpenAICompatibleClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	reqMessages := toOpenAIMessages(messages)
	if schema != nil {
		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}
		reqMessages = append(reqMessages, openai.ChatCompletionMessage{
			Role:    string(RoleSystem),
			Content: "Respond only with JSON matching this schema:\n" + string(schemaJSON),
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.ModelFor(size),
		Messages:    reqMessages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("openai-compatible structured output", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "no choices returned"}
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// Close cleans up resources.
func (c *OpenAICompatibleClient) Close() error {
	return nil
}

// hasAPIPath reports whether the base URL already carries an API path
// segment, in which case "/v1" is not appended.
func hasAPIPath(baseURL string) bool {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	path := strings.Trim(parsed.Path, "/")
	return path != ""
}
