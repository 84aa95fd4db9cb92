package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultCerebrasModel is the recommended model for extraction work.
	DefaultCerebrasModel = "qwen-3-coder-480b"
	// DefaultCerebrasSmallModel serves the small prompt tier.
	DefaultCerebrasSmallModel = "llama-3.3-70b"

	cerebrasBaseURL = "https://api.cerebras.ai/v1"

	// cerebrasMinInterval paces requests to stay under the free tier
	// per-minute quota.
	cerebrasMinInterval = 8 * time.Second

	cerebrasTopP float32 = 0.8
)

// CerebrasClient implements the Client interface for the Cerebras
// inference API. Cerebras enforces strict JSON schemas: every object must
// set additionalProperties false and list all properties as required, so
// schemas are rewritten before each request. Requests are paced to a
// minimum interval to respect the aggressive per-minute rate limits.
type CerebrasClient struct {
	client *openai.Client
	config *LLMConfig

	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewCerebrasClient creates a new Cerebras client.
func NewCerebrasClient(config *LLMConfig) (*CerebrasClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("cerebras api key is required")
	}
	if config.Model == "" {
		config.Model = DefaultCerebrasModel
	}
	if config.SmallModel == "" {
		config.SmallModel = DefaultCerebrasSmallModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = cerebrasBaseURL
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &CerebrasClient{
		client:      openai.NewClientWithConfig(clientConfig),
		config:      config,
		minInterval: cerebrasMinInterval,
	}, nil
}

// waitTurn blocks until the minimum interval since the previous request
// has elapsed, or the context is done.
func (c *CerebrasClient) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	if wait > 0 {
		c.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// Chat sends a chat completion request.
func (c *CerebrasClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.config.Temperature,
		TopP:        cerebrasTopP,
		MaxTokens:   c.config.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("cerebras chat completion", err)
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

// ChatWithStructuredOutput requests a completion constrained by a
// strictified version of the given schema.
func (c *CerebrasClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	strict := StrictifySchema(schema)

	req := openai.ChatCompletionRequest{
		Model:       c.config.ModelFor(size),
		Messages:    toOpenAIMessages(messages),
		Temperature: c.config.Temperature,
		TopP:        cerebrasTopP,
		MaxTokens:   c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "structured_response",
				Schema: schemaMarshaler(strict),
				Strict: true,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapProviderError("cerebras structured output", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &EmptyResponseError{Message: "no choices returned"}
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// Close cleans up resources.
func (c *CerebrasClient) Close() error {
	return nil
}

// StrictifySchema rewrites a JSON schema so Cerebras accepts it in strict
// mode: every object schema gets additionalProperties false and lists all
// of its properties as required. Nested objects, array items and $defs are
// rewritten recursively. The input is not mutated.
func StrictifySchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}

	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		out[k] = strictifyValue(v)
	}

	if t, ok := out["type"].(string); ok && t == "object" {
		out["additionalProperties"] = false
		if props, ok := out["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			out["required"] = required
		}
	}
	return out
}

func strictifyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return StrictifySchema(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = strictifyValue(item)
		}
		return out
	default:
		return v
	}
}
