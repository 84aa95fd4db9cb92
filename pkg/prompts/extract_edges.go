package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// ExtractEdgesPrompt extracts facts between resolved entities.
type ExtractEdgesPrompt interface {
	Edge() PromptVersion
	Reflexion() PromptVersion
}

// ExtractEdgesVersions holds all versions of extract edges prompts.
type ExtractEdgesVersions struct {
	edgePrompt      PromptVersion
	reflexionPrompt PromptVersion
}

func (e *ExtractEdgesVersions) Edge() PromptVersion      { return e.edgePrompt }
func (e *ExtractEdgesVersions) Reflexion() PromptVersion { return e.reflexionPrompt }

// NewExtractEdgesVersions creates the extract edges prompt set.
func NewExtractEdgesVersions() ExtractEdgesPrompt {
	return &ExtractEdgesVersions{
		edgePrompt:      NewPromptVersion(extractEdgePrompt),
		reflexionPrompt: NewPromptVersion(extractEdgesReflexionPrompt),
	}
}

func extractEdgePrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an expert fact extractor that identifies relationships between entities in provided text.`

	entities, err := contextJSON(context, "nodes")
	if err != nil {
		return nil, err
	}
	previousEpisodes, err := contextJSON(context, "previous_episodes")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<PREVIOUS MESSAGES>
%s
</PREVIOUS MESSAGES>

<CURRENT MESSAGE>
%v
</CURRENT MESSAGE>

<ENTITIES>
%s
</ENTITIES>

<REFERENCE TIME>
%v
</REFERENCE TIME>

Extract the factual relationships between the ENTITIES that the CURRENT MESSAGE states
or clearly implies.

For each fact return:
- relation_type: a predicate in SCREAMING_SNAKE_CASE (e.g. WORKS_AT, LOCATED_IN)
- source_entity_id and target_entity_id: indexes into ENTITIES
- fact: one sentence stating the relationship, naming both entities
- valid_at: when the fact became true, as an RFC3339 datetime, only if the message
  states or implies it; resolve relative dates against REFERENCE TIME. Otherwise empty.
- invalid_at: when the fact stopped being true, same rules. Otherwise empty.

Only extract facts between entities in ENTITIES. Do not invent relationships the
message does not support.

%v`,
		previousEpisodes,
		contextValue(context, "episode_content"),
		entities,
		contextValue(context, "reference_time"),
		contextValue(context, "custom_prompt"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func extractEdgesReflexionPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that determines which facts have not been extracted from the given context.`

	extracted, err := contextJSON(context, "extracted_facts")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<CURRENT MESSAGE>
%v
</CURRENT MESSAGE>

<EXTRACTED FACTS>
%s
</EXTRACTED FACTS>

List any clearly stated facts from the CURRENT MESSAGE missing from EXTRACTED FACTS.`,
		contextValue(context, "episode_content"),
		extracted)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
