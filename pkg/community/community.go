// Package community detects clusters of related entities and maintains
// community nodes summarizing them.
package community

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/embedder"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/prompts"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// DefaultMaxIterations bounds the label propagation loop.
const DefaultMaxIterations = 20

// MinCommunitySize is the smallest cluster that becomes a community node.
const MinCommunitySize = 2

// Builder detects communities with label propagation over the entity
// graph and writes community nodes with HAS_MEMBER edges.
type Builder struct {
	driver   driver.GraphDriver
	llm      llm.Client
	embedder embedder.Client
	prompts  prompts.Library
	logger   *slog.Logger
}

// NewBuilder creates a community builder. The LLM and embedder may be
// nil; communities then get concatenated names and no embeddings.
func NewBuilder(d driver.GraphDriver, llmClient llm.Client, emb embedder.Client, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		driver:   d,
		llm:      llmClient,
		embedder: emb,
		prompts:  prompts.DefaultLibrary,
		logger:   logger,
	}
}

// BuildCommunities replaces the group's communities with freshly
// detected ones and returns the new community nodes.
func (b *Builder) BuildCommunities(ctx context.Context, groupID string) ([]*types.Node, error) {
	adjacency, names, err := b.loadEntityGraph(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(adjacency) == 0 {
		return nil, nil
	}

	if err := b.removeExistingCommunities(ctx, groupID); err != nil {
		return nil, err
	}

	clusters := LabelPropagation(adjacency, DefaultMaxIterations)

	var communities []*types.Node
	var edges []*types.Edge
	now := utils.UTCNow()

	for _, members := range clusters {
		if len(members) < MinCommunitySize {
			continue
		}

		memberNames := make([]string, len(members))
		for i, id := range members {
			memberNames[i] = names[id]
		}
		name, summary := b.summarize(ctx, memberNames)

		node := &types.Node{
			ID:        utils.GenerateUUID(),
			Name:      name,
			Type:      types.CommunityNodeType,
			GroupID:   groupID,
			CreatedAt: now,
			UpdatedAt: now,
			Summary:   summary,
			Level:     0,
			Members:   members,
		}
		if b.embedder != nil {
			if vec, err := b.embedder.EmbedSingle(ctx, name+": "+summary); err == nil {
				node.NameEmbedding = vec
			}
		}
		communities = append(communities, node)

		for _, memberID := range members {
			edges = append(edges, &types.Edge{
				ID:        utils.GenerateUUID(),
				Type:      types.CommunityEdgeType,
				GroupID:   groupID,
				SourceID:  node.ID,
				TargetID:  memberID,
				CreatedAt: now,
				UpdatedAt: now,
				Name:      string(types.CommunityEdgeType),
				ValidAt:   now,
			})
		}
	}

	if len(communities) == 0 {
		return nil, nil
	}
	if err := b.driver.UpsertNodes(ctx, communities); err != nil {
		return nil, fmt.Errorf("failed to store community nodes: %w", err)
	}
	if err := b.driver.UpsertEdges(ctx, edges); err != nil {
		return nil, fmt.Errorf("failed to store member edges: %w", err)
	}
	return communities, nil
}

// LabelPropagation clusters the undirected graph given as an adjacency
// list. Each node starts in its own community and repeatedly adopts the
// most common label among its neighbors, smallest label on ties, until
// labels stabilize or maxIterations passes. Returns label to members,
// members sorted.
func LabelPropagation(adjacency map[string][]string, maxIterations int) map[string][]string {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	ids := make([]string, 0, len(adjacency))
	labels := make(map[string]string, len(adjacency))
	for id := range adjacency {
		ids = append(ids, id)
		labels[id] = id
	}
	sort.Strings(ids)

	for i := 0; i < maxIterations; i++ {
		changed := false
		for _, id := range ids {
			counts := make(map[string]int)
			for _, neighbor := range adjacency[id] {
				counts[labels[neighbor]]++
			}
			if len(counts) == 0 {
				continue
			}
			best := labels[id]
			bestCount := counts[best]
			for label, count := range counts {
				if count > bestCount || (count == bestCount && label < best) {
					best = label
					bestCount = count
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	clusters := make(map[string][]string)
	for id, label := range labels {
		clusters[label] = append(clusters[label], id)
	}
	for label := range clusters {
		sort.Strings(clusters[label])
	}
	return clusters
}

func (b *Builder) loadEntityGraph(ctx context.Context, groupID string) (map[string][]string, map[string]string, error) {
	records, _, _, err := b.driver.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		OPTIONAL MATCH (n)-[:RELATES_TO]-(m:Entity {group_id: $group_id})
		RETURN n.uuid AS uuid, n.name AS name, collect(DISTINCT m.uuid) AS neighbors`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load entity graph: %w", err)
	}
	rows, ok := records.([]map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("unexpected entity graph result type %T", records)
	}

	adjacency := make(map[string][]string, len(rows))
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		id, _ := row["uuid"].(string)
		if id == "" {
			continue
		}
		name, _ := row["name"].(string)
		names[id] = name
		adjacency[id] = nil
		if neighbors, ok := row["neighbors"].([]interface{}); ok {
			for _, n := range neighbors {
				if s, ok := n.(string); ok && s != "" {
					adjacency[id] = append(adjacency[id], s)
				}
			}
		}
	}
	return adjacency, names, nil
}

func (b *Builder) removeExistingCommunities(ctx context.Context, groupID string) error {
	_, _, _, err := b.driver.ExecuteQuery(`
		MATCH (c:Community {group_id: $group_id})
		DETACH DELETE c`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		return fmt.Errorf("failed to remove existing communities: %w", err)
	}
	return nil
}

// summarize asks the LLM for a community name and summary, falling back
// to the member list when no LLM is available or the call fails.
func (b *Builder) summarize(ctx context.Context, memberNames []string) (string, string) {
	fallbackName := "Community"
	if len(memberNames) > 0 {
		fallbackName = memberNames[0]
		if len(memberNames) > 1 {
			fallbackName += fmt.Sprintf(" and %d others", len(memberNames)-1)
		}
	}

	if b.llm == nil {
		return fallbackName, ""
	}

	messages, err := b.prompts.Communities().Summarize().Call(map[string]interface{}{
		"members": memberNames,
	})
	if err != nil {
		return fallbackName, ""
	}
	raw, err := b.llm.ChatWithStructuredOutput(ctx, messages, prompts.CommunitySummarySchema(), llm.ModelSizeSmall)
	if err != nil {
		b.logger.Warn("community summarization failed", "error", err)
		return fallbackName, ""
	}
	var parsed prompts.CommunitySummary
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Name == "" {
		return fallbackName, ""
	}
	return parsed.Name, parsed.Summary
}
