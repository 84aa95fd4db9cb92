package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// DedupeEdgesPrompt resolves a new fact against similar existing facts.
type DedupeEdgesPrompt interface {
	ResolveEdge() PromptVersion
}

// DedupeEdgesVersions holds all versions of dedupe edges prompts.
type DedupeEdgesVersions struct {
	resolveEdgePrompt PromptVersion
}

func (d *DedupeEdgesVersions) ResolveEdge() PromptVersion { return d.resolveEdgePrompt }

// NewDedupeEdgesVersions creates the dedupe edges prompt set.
func NewDedupeEdgesVersions() DedupeEdgesPrompt {
	return &DedupeEdgesVersions{
		resolveEdgePrompt: NewPromptVersion(resolveEdgePrompt),
	}
}

func resolveEdgePrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that compares a new fact against existing facts between the same entities.`

	existing, err := contextJSON(context, "existing_edges")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<NEW FACT>
%v
</NEW FACT>

<EXISTING FACTS>
%s
</EXISTING FACTS>

Each existing fact carries an idx. Compare the NEW FACT against them and return:
- duplicate_facts: idx values of existing facts stating the same thing as the new fact
- contradicted_facts: idx values of existing facts the new fact contradicts
- fact_type: a short label for the kind of fact (e.g. EMPLOYMENT, LOCATION, OTHER)

A duplicate must assert the same relationship, not merely involve the same entities.
A contradiction must be mutually exclusive with the new fact, not merely different.`,
		contextValue(context, "new_edge"),
		existing)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
