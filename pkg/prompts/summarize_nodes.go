package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// SummarizeNodesPrompt maintains entity summaries.
type SummarizeNodesPrompt interface {
	Summarize() PromptVersion
	SummarizePair() PromptVersion
}

// SummarizeNodesVersions holds all versions of summarize prompts.
type SummarizeNodesVersions struct {
	summarizePrompt     PromptVersion
	summarizePairPrompt PromptVersion
}

func (s *SummarizeNodesVersions) Summarize() PromptVersion     { return s.summarizePrompt }
func (s *SummarizeNodesVersions) SummarizePair() PromptVersion { return s.summarizePairPrompt }

// NewSummarizeNodesVersions creates the summarize prompt set.
func NewSummarizeNodesVersions() SummarizeNodesPrompt {
	return &SummarizeNodesVersions{
		summarizePrompt:     NewPromptVersion(summarizeNodePrompt),
		summarizePairPrompt: NewPromptVersion(summarizePairPrompt),
	}
}

func summarizeNodePrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that maintains concise entity summaries in a knowledge graph.`

	episodes, err := contextJSON(context, "episodes")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<ENTITY>
%v
</ENTITY>

<EXISTING SUMMARY>
%v
</EXISTING SUMMARY>

<NEW EPISODES>
%s
</NEW EPISODES>

Update the entity summary with what the new episodes add. Keep it under three
sentences and state only information present in the provided context.`,
		contextValue(context, "entity_name"),
		contextValue(context, "summary"),
		episodes)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// summarizePairPrompt merges the summaries of two entities resolved as
// duplicates.
func summarizePairPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that merges entity summaries.`

	userPrompt := fmt.Sprintf(`<SUMMARY A>
%v
</SUMMARY A>

<SUMMARY B>
%v
</SUMMARY B>

The two summaries describe the same entity. Combine them into one summary of at most
three sentences, dropping repetition and keeping every distinct claim.`,
		contextValue(context, "summary_a"),
		contextValue(context, "summary_b"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
