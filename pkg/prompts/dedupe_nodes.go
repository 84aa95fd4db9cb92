package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// DedupeNodesPrompt resolves extracted entities against existing ones.
type DedupeNodesPrompt interface {
	Nodes() PromptVersion
	NodeList() PromptVersion
}

// DedupeNodesVersions holds all versions of dedupe nodes prompts.
type DedupeNodesVersions struct {
	nodesPrompt    PromptVersion
	nodeListPrompt PromptVersion
}

func (d *DedupeNodesVersions) Nodes() PromptVersion    { return d.nodesPrompt }
func (d *DedupeNodesVersions) NodeList() PromptVersion { return d.nodeListPrompt }

// NewDedupeNodesVersions creates the dedupe nodes prompt set.
func NewDedupeNodesVersions() DedupeNodesPrompt {
	return &DedupeNodesVersions{
		nodesPrompt:    NewPromptVersion(dedupeNodesPrompt),
		nodeListPrompt: NewPromptVersion(dedupeNodeListPrompt),
	}
}

func dedupeNodesPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that determines whether newly extracted entities are duplicates of existing graph entities.`

	extracted, err := contextJSON(context, "extracted_nodes")
	if err != nil {
		return nil, err
	}
	existing, err := contextJSON(context, "existing_nodes")
	if err != nil {
		return nil, err
	}
	episodes, err := contextJSON(context, "previous_episodes")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<PREVIOUS MESSAGES>
%s
</PREVIOUS MESSAGES>

<CURRENT MESSAGE>
%v
</CURRENT MESSAGE>

<NEW ENTITIES>
%s
</NEW ENTITIES>

<EXISTING ENTITIES>
%s
</EXISTING ENTITIES>

For each entity in NEW ENTITIES, decide whether it refers to the same real-world thing
as one of the EXISTING ENTITIES (each existing entity carries a candidate idx).

For every new entity return:
- id: its id from NEW ENTITIES
- name: the canonical name to keep (prefer the fuller, more explicit form)
- duplicate_idx: the idx of the existing entity it duplicates, or -1 if none

Similar names alone do not make a duplicate; the entities must denote the same thing
in context.`,
		episodes,
		contextValue(context, "episode_content"),
		extracted,
		existing)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// dedupeNodeListPrompt collapses a flat list of entities, used by the
// maintenance sweep rather than ingestion.
func dedupeNodeListPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that groups entity nodes referring to the same real-world thing.`

	nodes, err := contextJSON(context, "nodes")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<ENTITIES>
%s
</ENTITIES>

Group the entities above. For every entity return:
- id: its id from ENTITIES
- name: the canonical name for its group
- duplicate_idx: the id of the group representative (the lowest id in the group), or -1
  when the entity stands alone.`, nodes)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
