package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements the Client interface using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	config *LLMConfig
}

// NewOpenAIClient creates a client against api.openai.com, or against
// config.BaseURL when set.
func NewOpenAIClient(config *LLMConfig) (*OpenAIClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "no choices returned"}
	}

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokensUsed: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ChatWithStructuredOutput requests a completion constrained by a strict
// JSON schema response format.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.ModelFor(size),
		Messages:    toOpenAIMessages(messages),
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "structured_response",
				Schema: schemaMarshaler(schema),
				Strict: true,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("openai structured output", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "no choices returned"}
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// Close cleans up resources.
func (c *OpenAIClient) Close() error {
	return nil
}

// schemaMarshaler adapts a plain map schema to the json.Marshaler the
// response format field expects.
type schemaMarshaler map[string]interface{}

func (s schemaMarshaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(s))
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}

// wrapProviderError lifts provider failures into the typed error kinds the
// retry and fallback layers dispatch on.
func wrapProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRateLimitError(err) {
		return &RateLimitError{Message: err.Error()}
	}
	if IsTransientError(err) {
		return &TransientError{Message: op, Err: err}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
