package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// InvalidateEdgesPrompt decides which existing facts a new fact supersedes.
type InvalidateEdgesPrompt interface {
	Invalidate() PromptVersion
}

// InvalidateEdgesVersions holds all versions of invalidate edges prompts.
type InvalidateEdgesVersions struct {
	invalidatePrompt PromptVersion
}

func (i *InvalidateEdgesVersions) Invalidate() PromptVersion { return i.invalidatePrompt }

// NewInvalidateEdgesVersions creates the invalidate edges prompt set.
func NewInvalidateEdgesVersions() InvalidateEdgesPrompt {
	return &InvalidateEdgesVersions{
		invalidatePrompt: NewPromptVersion(invalidateEdgesPrompt),
	}
}

func invalidateEdgesPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that performs temporal reconciliation over facts in a knowledge graph.`

	existing, err := contextJSON(context, "existing_edges")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<NEW FACT>
%v
</NEW FACT>

<NEW FACT VALID AT>
%v
</NEW FACT VALID AT>

<EXISTING FACTS>
%s
</EXISTING FACTS>

The NEW FACT became true at NEW FACT VALID AT. Each existing fact carries an idx and
its own validity window. Return invalidated_edges: the idx values of existing facts
that can no longer hold once the new fact is true.

Only invalidate facts that are genuinely mutually exclusive with the new fact
(e.g. a person cannot primarily live in two cities). Coexisting facts stay valid.`,
		contextValue(context, "new_edge"),
		contextValue(context, "valid_at"),
		existing)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
