package graphmem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	graphmemlib "github.com/soundprediction/graphmem"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// mcpTools exposes graph operations as MCP tools.
type mcpTools struct {
	memory  graphmemlib.GraphMem
	groupID string
	logger  *slog.Logger
}

// AddMemoryRequest adds one episode to the graph.
type AddMemoryRequest struct {
	Name              string `json:"name"`
	EpisodeBody       string `json:"episode_body"`
	GroupID           string `json:"group_id,omitempty"`
	Source            string `json:"source,omitempty"`
	SourceDescription string `json:"source_description,omitempty"`
	UUID              string `json:"uuid,omitempty"`
}

// SearchRequest queries the graph.
type SearchRequest struct {
	Query   string `json:"query"`
	GroupID string `json:"group_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// EpisodesRequest retrieves recent episodes.
type EpisodesRequest struct {
	GroupID string `json:"group_id,omitempty"`
	LastN   int    `json:"last_n,omitempty"`
}

// UUIDRequest addresses one graph object.
type UUIDRequest struct {
	UUID    string `json:"uuid"`
	GroupID string `json:"group_id,omitempty"`
}

// ClearRequest wipes a group.
type ClearRequest struct {
	GroupID string `json:"group_id,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
}

// ToolResponse is the uniform tool result wrapper.
type ToolResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func toolError(format string, args ...interface{}) *ToolResponse {
	return &ToolResponse{Success: false, Error: fmt.Sprintf(format, args...)}
}

func (t *mcpTools) register(g *genkit.Genkit) {
	genkit.DefineTool(g, "add_memory",
		"Add an episode to memory. This is the primary way to add information to the graph.",
		t.addMemory)
	genkit.DefineTool(g, "search_memory_nodes",
		"Search the graph memory for relevant entity summaries.",
		t.searchNodes)
	genkit.DefineTool(g, "search_memory_facts",
		"Search the graph memory for relevant facts.",
		t.searchFacts)
	genkit.DefineTool(g, "get_entity_edge",
		"Get an entity edge from the graph memory by its UUID.",
		t.getEntityEdge)
	genkit.DefineTool(g, "get_episodes",
		"Get the most recent memory episodes for a group.",
		t.getEpisodes)
	genkit.DefineTool(g, "delete_episode",
		"Delete an episode and the facts only it asserted.",
		t.deleteEpisode)
	genkit.DefineTool(g, "clear_graph",
		"Clear all data for a group from the graph memory.",
		t.clearGraph)
}

func (t *mcpTools) addMemory(ctx *ai.ToolContext, input *AddMemoryRequest) (*ToolResponse, error) {
	if input.EpisodeBody == "" {
		return toolError("episode_body is required"), nil
	}
	groupID := input.GroupID
	if groupID == "" {
		groupID = t.groupID
	}
	source := types.EpisodeSource(input.Source)
	if source == "" {
		source = types.TextSource
	}

	episode := types.Episode{
		ID:                input.UUID,
		Name:              input.Name,
		Content:           input.EpisodeBody,
		Source:            source,
		SourceDescription: input.SourceDescription,
		Reference:         utils.UTCNow(),
		GroupID:           groupID,
	}
	result, err := t.memory.AddEpisode(context.Background(), episode)
	if err != nil {
		t.logger.Error("add_memory failed", "error", err)
		return toolError("failed to add episode: %v", err), nil
	}
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("episode added with %d entities and %d facts", len(result.Nodes), len(result.Edges)),
		Data:    map[string]interface{}{"uuid": result.Episode.ID},
	}, nil
}

func (t *mcpTools) searchNodes(ctx *ai.ToolContext, input *SearchRequest) (*ToolResponse, error) {
	results, err := t.search(input, false)
	if err != nil {
		t.logger.Error("search_memory_nodes failed", "error", err)
		return toolError("search failed: %v", err), nil
	}

	nodes := make([]map[string]interface{}, len(results.Nodes))
	for i, node := range results.Nodes {
		nodes[i] = map[string]interface{}{
			"uuid":        node.ID,
			"name":        node.Name,
			"entity_type": node.EntityType,
			"summary":     node.Summary,
			"group_id":    node.GroupID,
			"created_at":  node.CreatedAt.Format(time.RFC3339),
		}
	}
	return &ToolResponse{Success: true, Data: nodes}, nil
}

func (t *mcpTools) searchFacts(ctx *ai.ToolContext, input *SearchRequest) (*ToolResponse, error) {
	results, err := t.search(input, true)
	if err != nil {
		t.logger.Error("search_memory_facts failed", "error", err)
		return toolError("search failed: %v", err), nil
	}

	facts := make([]map[string]interface{}, len(results.Edges))
	for i, edge := range results.Edges {
		fact := map[string]interface{}{
			"uuid":       edge.ID,
			"name":       edge.Name,
			"fact":       edge.Fact,
			"source_id":  edge.SourceID,
			"target_id":  edge.TargetID,
			"group_id":   edge.GroupID,
			"created_at": edge.CreatedAt.Format(time.RFC3339),
		}
		if !edge.ValidAt.IsZero() {
			fact["valid_at"] = edge.ValidAt.Format(time.RFC3339)
		}
		if edge.InvalidAt != nil {
			fact["invalid_at"] = edge.InvalidAt.Format(time.RFC3339)
		}
		facts[i] = fact
	}
	return &ToolResponse{Success: true, Data: facts}, nil
}

func (t *mcpTools) search(input *SearchRequest, edges bool) (*types.SearchResults, error) {
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	groupID := input.GroupID
	if groupID == "" {
		groupID = t.groupID
	}
	config := graphmemlib.NewDefaultSearchConfig()
	config.IncludeEdges = edges
	config.Filters = &types.SearchFilters{GroupIDs: []string{groupID}}
	if input.Limit > 0 {
		config.Limit = input.Limit
	}
	return t.memory.Search(context.Background(), input.Query, config)
}

func (t *mcpTools) getEntityEdge(ctx *ai.ToolContext, input *UUIDRequest) (*ToolResponse, error) {
	if input.UUID == "" {
		return toolError("uuid is required"), nil
	}
	edge, err := t.memory.GetEdge(context.Background(), input.UUID)
	if err != nil {
		return toolError("failed to get edge: %v", err), nil
	}
	return &ToolResponse{Success: true, Data: edge}, nil
}

func (t *mcpTools) getEpisodes(ctx *ai.ToolContext, input *EpisodesRequest) (*ToolResponse, error) {
	groupID := input.GroupID
	if groupID == "" {
		groupID = t.groupID
	}
	lastN := input.LastN
	if lastN <= 0 {
		lastN = 10
	}
	episodes, err := t.memory.GetEpisodes(context.Background(), groupID, lastN)
	if err != nil {
		return toolError("failed to get episodes: %v", err), nil
	}

	out := make([]map[string]interface{}, len(episodes))
	for i, ep := range episodes {
		out[i] = map[string]interface{}{
			"uuid":       ep.ID,
			"name":       ep.Name,
			"content":    ep.Content,
			"source":     string(ep.Source),
			"group_id":   ep.GroupID,
			"created_at": ep.CreatedAt.Format(time.RFC3339),
		}
	}
	return &ToolResponse{Success: true, Data: out}, nil
}

func (t *mcpTools) deleteEpisode(ctx *ai.ToolContext, input *UUIDRequest) (*ToolResponse, error) {
	if input.UUID == "" {
		return toolError("uuid is required"), nil
	}
	groupID := input.GroupID
	if groupID == "" {
		groupID = t.groupID
	}
	if err := t.memory.RemoveEpisode(context.Background(), input.UUID, groupID); err != nil {
		return toolError("failed to delete episode: %v", err), nil
	}
	return &ToolResponse{Success: true, Message: fmt.Sprintf("episode %s deleted", input.UUID)}, nil
}

func (t *mcpTools) clearGraph(ctx *ai.ToolContext, input *ClearRequest) (*ToolResponse, error) {
	if !input.Confirm {
		return toolError("set confirm to true to clear the graph"), nil
	}
	groupID := input.GroupID
	if groupID == "" {
		groupID = t.groupID
	}
	if err := t.memory.ClearGroup(context.Background(), groupID); err != nil {
		return toolError("failed to clear graph: %v", err), nil
	}
	return &ToolResponse{Success: true, Message: fmt.Sprintf("group %s cleared", groupID)}, nil
}
