package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// ExtractEdgeDatesPrompt extracts the validity window of one fact.
type ExtractEdgeDatesPrompt interface {
	V1() PromptVersion
}

// ExtractEdgeDatesVersions holds all versions of edge date prompts.
type ExtractEdgeDatesVersions struct {
	v1Prompt PromptVersion
}

func (e *ExtractEdgeDatesVersions) V1() PromptVersion { return e.v1Prompt }

// NewExtractEdgeDatesVersions creates the edge dates prompt set.
func NewExtractEdgeDatesVersions() ExtractEdgeDatesPrompt {
	return &ExtractEdgeDatesVersions{
		v1Prompt: NewPromptVersion(extractEdgeDatesPrompt),
	}
}

func extractEdgeDatesPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that extracts the temporal validity of a fact from its source episode.`

	userPrompt := fmt.Sprintf(`<EPISODE>
%v
</EPISODE>

<REFERENCE TIME>
%v
</REFERENCE TIME>

<FACT>
%v
</FACT>

Determine when the FACT became true (valid_at) and, if the episode says it ended,
when it stopped (invalid_at). Resolve relative expressions ("last year", "since
March") against REFERENCE TIME. Return RFC3339 datetimes, or empty strings when the
episode states nothing about timing. Never guess dates the episode does not support.`,
		contextValue(context, "episode_content"),
		contextValue(context, "reference_time"),
		contextValue(context, "fact"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
