package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// ExtractNodesPrompt selects the node extraction prompt for a source kind.
type ExtractNodesPrompt interface {
	ExtractMessage() PromptVersion
	ExtractText() PromptVersion
	ExtractJSON() PromptVersion
	Reflexion() PromptVersion
	ExtractSummary() PromptVersion
}

// ExtractNodesVersions holds all versions of extract nodes prompts.
type ExtractNodesVersions struct {
	extractMessagePrompt PromptVersion
	extractTextPrompt    PromptVersion
	extractJSONPrompt    PromptVersion
	reflexionPrompt      PromptVersion
	extractSummaryPrompt PromptVersion
}

func (e *ExtractNodesVersions) ExtractMessage() PromptVersion { return e.extractMessagePrompt }
func (e *ExtractNodesVersions) ExtractText() PromptVersion    { return e.extractTextPrompt }
func (e *ExtractNodesVersions) ExtractJSON() PromptVersion    { return e.extractJSONPrompt }
func (e *ExtractNodesVersions) Reflexion() PromptVersion      { return e.reflexionPrompt }
func (e *ExtractNodesVersions) ExtractSummary() PromptVersion { return e.extractSummaryPrompt }

// NewExtractNodesVersions creates the extract nodes prompt set.
func NewExtractNodesVersions() ExtractNodesPrompt {
	return &ExtractNodesVersions{
		extractMessagePrompt: NewPromptVersion(extractMessagePrompt),
		extractTextPrompt:    NewPromptVersion(extractTextPrompt),
		extractJSONPrompt:    NewPromptVersion(extractJSONPrompt),
		reflexionPrompt:      NewPromptVersion(extractNodesReflexionPrompt),
		extractSummaryPrompt: NewPromptVersion(extractSummaryPrompt),
	}
}

func extractMessagePrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that extracts entity nodes from conversational messages.
Your primary task is to extract and classify the speaker and other significant entities mentioned in the conversation.`

	previousEpisodes, err := contextJSON(context, "previous_episodes")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<ENTITY TYPES>
%v
</ENTITY TYPES>

<PREVIOUS MESSAGES>
%s
</PREVIOUS MESSAGES>

<CURRENT MESSAGE>
%v
</CURRENT MESSAGE>

Instructions:

Extract the entity nodes mentioned explicitly or implicitly in the CURRENT MESSAGE.
Resolve pronoun references (he/she/they, this/that) to the named entity; never extract
the pronoun itself.

1. Always extract the speaker (the part before the colon in each dialogue line) as the
   first entity. Repeated mentions of the speaker are a single entity.
2. Extract every significant entity, concept or actor the CURRENT MESSAGE mentions.
   Entities appearing only in PREVIOUS MESSAGES are context, not output.
3. Classify each entity with the matching entity_type_id from ENTITY TYPES.
4. Do not extract relationships, actions, dates or times as entities.
5. Name entities explicitly and unambiguously; prefer full names.

%v`,
		contextValue(context, "entity_types"),
		previousEpisodes,
		contextValue(context, "episode_content"),
		contextValue(context, "custom_prompt"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func extractTextPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that extracts entity nodes from text documents.
Your primary task is to extract and classify the significant entities mentioned in the provided text.`

	userPrompt := fmt.Sprintf(`<ENTITY TYPES>
%v
</ENTITY TYPES>

<TEXT>
%v
</TEXT>

Extract the entity nodes mentioned explicitly or implicitly in the TEXT.

1. Extract every significant entity, concept or actor.
2. Classify each entity with the matching entity_type_id from ENTITY TYPES.
3. Do not extract relationships, actions, dates or times as entities.
4. Name entities explicitly and unambiguously; prefer full names.

%v`,
		contextValue(context, "entity_types"),
		contextValue(context, "episode_content"),
		contextValue(context, "custom_prompt"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func extractJSONPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that extracts entity nodes from JSON documents.
Your primary task is to extract and classify relevant entities from the JSON payload.`

	userPrompt := fmt.Sprintf(`<ENTITY TYPES>
%v
</ENTITY TYPES>

<SOURCE DESCRIPTION>
%v
</SOURCE DESCRIPTION>

<JSON>
%v
</JSON>

Given the source description and JSON payload, extract the relevant entities.

1. Treat values naming people, places, organizations, products or concepts as entities.
2. Classify each entity with the matching entity_type_id from ENTITY TYPES.
3. Do not extract keys, dates or identifiers as entities.

%v`,
		contextValue(context, "entity_types"),
		contextValue(context, "source_description"),
		contextValue(context, "episode_content"),
		contextValue(context, "custom_prompt"))

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func extractNodesReflexionPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that determines which entities have not been extracted from the given context.`

	previousEpisodes, err := contextJSON(context, "previous_episodes")
	if err != nil {
		return nil, err
	}
	extracted, err := contextJSON(context, "extracted_entities")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<PREVIOUS MESSAGES>
%s
</PREVIOUS MESSAGES>

<CURRENT MESSAGE>
%v
</CURRENT MESSAGE>

<EXTRACTED ENTITIES>
%s
</EXTRACTED ENTITIES>

Given the above conversation and the list of entities already extracted, name any
significant entities from the CURRENT MESSAGE that are missing from the extracted list.`,
		previousEpisodes,
		contextValue(context, "episode_content"),
		extracted)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func extractSummaryPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that writes concise entity summaries from graph context.`

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

<EPISODES>
%s
</EPISODES>

Write a summary of the entity, at most three sentences, combining the existing summary
with what the episodes say. State only information present in the provided context.`,
		contextValue(context, "entity_name"),
		contextValue(context, "summary"),
		episodes)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
