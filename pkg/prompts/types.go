package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// PromptFunction generates prompt messages from a context map.
type PromptFunction func(context map[string]interface{}) ([]llm.Message, error)

// PromptVersion represents a versioned prompt function.
type PromptVersion interface {
	Call(context map[string]interface{}) ([]llm.Message, error)
}

type promptVersionImpl struct {
	fn PromptFunction
}

// Call executes the prompt function with the given context.
func (p *promptVersionImpl) Call(context map[string]interface{}) ([]llm.Message, error) {
	messages, err := p.fn(context)
	if err != nil {
		return nil, err
	}

	// Add unicode preservation instruction to system messages
	for i, msg := range messages {
		if msg.Role == llm.RoleSystem {
			messages[i].Content += "\nDo not escape unicode characters.\n"
		}
	}
	return messages, nil
}

// NewPromptVersion creates a new PromptVersion from a function.
func NewPromptVersion(fn PromptFunction) PromptVersion {
	return &promptVersionImpl{fn: fn}
}

// ToPromptJSON serializes data to indented JSON for embedding in prompts.
func ToPromptJSON(data interface{}) (string, error) {
	if data == nil {
		return "[]", nil
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt context: %w", err)
	}
	return string(b), nil
}

func contextValue(context map[string]interface{}, key string) interface{} {
	if v, ok := context[key]; ok {
		return v
	}
	return ""
}

func contextJSON(context map[string]interface{}, key string) (string, error) {
	return ToPromptJSON(context[key])
}
