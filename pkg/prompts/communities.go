package prompts

import (
	"fmt"

	"github.com/soundprediction/graphmem/pkg/llm"
)

// CommunitiesPrompt names and summarizes detected communities.
type CommunitiesPrompt interface {
	Summarize() PromptVersion
}

// CommunitiesVersions holds all versions of community prompts.
type CommunitiesVersions struct {
	summarizePrompt PromptVersion
}

func (c *CommunitiesVersions) Summarize() PromptVersion { return c.summarizePrompt }

// NewCommunitiesVersions creates the communities prompt set.
func NewCommunitiesVersions() CommunitiesPrompt {
	return &CommunitiesVersions{
		summarizePrompt: NewPromptVersion(summarizeCommunityPrompt),
	}
}

func summarizeCommunityPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an AI assistant that names and summarizes communities of related entities in a knowledge graph.`

	members, err := contextJSON(context, "members")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`<MEMBER ENTITIES>
%s
</MEMBER ENTITIES>

The entities above form one community. Return:
- name: a short descriptive name for the community
- summary: at most three sentences describing what connects its members,
  based only on the member names and summaries provided.`, members)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}
