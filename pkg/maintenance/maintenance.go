// Package maintenance provides offline graph hygiene: entity dedup
// sweeps, isolated node cleanup and expired edge pruning.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/prompts"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// MaxLLMSweepSize bounds how many entities one LLM grouping call sees.
const MaxLLMSweepSize = 100

// Manager runs maintenance operations against one graph.
type Manager struct {
	driver  driver.GraphDriver
	llm     llm.Client
	prompts prompts.Library
	logger  *slog.Logger
}

// NewManager creates a maintenance manager. The LLM client may be nil;
// the dedup sweep then only collapses exact name matches.
func NewManager(d driver.GraphDriver, llmClient llm.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		driver:  d,
		llm:     llmClient,
		prompts: prompts.DefaultLibrary,
		logger:  logger,
	}
}

// DeduplicateEntities collapses duplicate entity nodes in a group.
// Duplicates keep their node but are marked merged; their facts are
// copied onto the survivor and the originals expire. Returns how many
// entities were merged away.
func (m *Manager) DeduplicateEntities(ctx context.Context, groupID string) (int, error) {
	entities, err := m.loadEntities(ctx, groupID)
	if err != nil {
		return 0, err
	}
	if len(entities) < 2 {
		return 0, nil
	}

	groups := GroupByNormalizedName(entities)
	if m.llm != nil && len(entities) <= MaxLLMSweepSize {
		llmGroups, err := m.groupWithLLM(ctx, entities)
		if err != nil {
			m.logger.Warn("llm grouping failed, using exact matches only", "error", err)
		} else {
			groups = mergeGroupings(groups, llmGroups)
		}
	}

	merged := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		survivor := group[0]
		for _, dup := range group[1:] {
			if err := m.mergeEntity(ctx, survivor, dup, groupID); err != nil {
				return merged, err
			}
			merged++
		}
	}
	return merged, nil
}

// CleanupIsolatedNodes deletes entity nodes with no remaining
// relationships. Returns how many were removed.
func (m *Manager) CleanupIsolatedNodes(ctx context.Context, groupID string) (int, error) {
	records, _, _, err := m.driver.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		WHERE NOT (n)--()
		WITH n, n.uuid AS uuid
		DELETE n
		RETURN count(uuid) AS removed`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up isolated nodes: %w", err)
	}
	return countFromRecords(records, "removed"), nil
}

// PruneExpiredEdges deletes edges expired by earlier dedup sweeps before
// the cutoff. Returns how many were removed.
func (m *Manager) PruneExpiredEdges(ctx context.Context, groupID, cutoff string) (int, error) {
	records, _, _, err := m.driver.ExecuteQuery(`
		MATCH (:Entity {group_id: $group_id})-[e:RELATES_TO]->(:Entity)
		WHERE e.expired_at IS NOT NULL AND e.expired_at < $cutoff
		WITH e, e.uuid AS uuid
		DELETE e
		RETURN count(uuid) AS removed`,
		map[string]interface{}{"group_id": groupID, "cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired edges: %w", err)
	}
	return countFromRecords(records, "removed"), nil
}

// GroupByNormalizedName groups entities whose normalized names are
// identical. Each group is ordered oldest first, so the survivor is the
// longest-lived node.
func GroupByNormalizedName(entities []*types.Node) [][]*types.Node {
	byName := make(map[string][]*types.Node)
	for _, e := range entities {
		key := utils.NormalizeName(e.Name)
		byName[key] = append(byName[key], e)
	}

	keys := make([]string, 0, len(byName))
	for k := range byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]*types.Node, 0, len(byName))
	for _, k := range keys {
		group := byName[k]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		out = append(out, group)
	}
	return out
}

func (m *Manager) groupWithLLM(ctx context.Context, entities []*types.Node) ([][]*types.Node, error) {
	listed := make([]map[string]interface{}, len(entities))
	for i, e := range entities {
		listed[i] = map[string]interface{}{"id": i, "name": e.Name, "summary": e.Summary}
	}
	messages, err := m.prompts.DedupeNodes().NodeList().Call(map[string]interface{}{
		"nodes": listed,
	})
	if err != nil {
		return nil, err
	}
	raw, err := m.llm.ChatWithStructuredOutput(ctx, messages, prompts.NodeResolutionsSchema(), llm.ModelSizeSmall)
	if err != nil {
		return nil, err
	}
	var parsed prompts.NodeResolutions
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	byRep := make(map[int][]*types.Node)
	for _, res := range parsed.EntityResolutions {
		if res.ID < 0 || res.ID >= len(entities) {
			continue
		}
		rep := res.DuplicateIdx
		if rep < 0 || rep >= len(entities) {
			rep = res.ID
		}
		byRep[rep] = append(byRep[rep], entities[res.ID])
	}

	reps := make([]int, 0, len(byRep))
	for rep := range byRep {
		reps = append(reps, rep)
	}
	sort.Ints(reps)

	out := make([][]*types.Node, 0, len(byRep))
	for _, rep := range reps {
		out = append(out, byRep[rep])
	}
	return out, nil
}

// mergeGroupings unions two groupings of the same entities: any two
// entities grouped together in either input end up together.
func mergeGroupings(a, b [][]*types.Node) [][]*types.Node {
	parent := make(map[string]string)
	nodes := make(map[string]*types.Node)

	var find func(id string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(x, y string) {
		rx, ry := find(x), find(y)
		if rx != ry {
			if ry < rx {
				rx, ry = ry, rx
			}
			parent[ry] = rx
		}
	}
	register := func(groups [][]*types.Node) {
		for _, group := range groups {
			for _, n := range group {
				if _, ok := parent[n.ID]; !ok {
					parent[n.ID] = n.ID
					nodes[n.ID] = n
				}
			}
			for i := 1; i < len(group); i++ {
				union(group[0].ID, group[i].ID)
			}
		}
	}
	register(a)
	register(b)

	byRoot := make(map[string][]*types.Node)
	for id, n := range nodes {
		root := find(id)
		byRoot[root] = append(byRoot[root], n)
	}

	roots := make([]string, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	out := make([][]*types.Node, 0, len(byRoot))
	for _, root := range roots {
		group := byRoot[root]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		out = append(out, group)
	}
	return out
}

// mergeEntity folds dup into survivor: facts move to the survivor, the
// originals expire, mentions re-point, and the duplicate is marked.
func (m *Manager) mergeEntity(ctx context.Context, survivor, dup *types.Node, groupID string) error {
	now := utils.UTCNow()

	edges, err := m.driver.GetEdgesByNode(ctx, dup.ID, groupID)
	if err != nil {
		return fmt.Errorf("failed to load edges of %s: %w", dup.ID, err)
	}

	for _, edge := range edges {
		switch edge.Type {
		case types.EntityEdgeType:
			if edge.ExpiredAt != nil {
				continue
			}
			moved := *edge
			moved.ID = utils.GenerateUUID()
			moved.CreatedAt = now
			moved.UpdatedAt = now
			if moved.SourceID == dup.ID {
				moved.SourceID = survivor.ID
			}
			if moved.TargetID == dup.ID {
				moved.TargetID = survivor.ID
			}
			if moved.SourceID == moved.TargetID {
				continue
			}
			if err := m.driver.UpsertEdge(ctx, &moved); err != nil {
				return err
			}

			expiredAt := now
			edge.ExpiredAt = &expiredAt
			edge.UpdatedAt = now
			if err := m.driver.UpsertEdge(ctx, edge); err != nil {
				return err
			}

		case types.EpisodicEdgeType, types.CommunityEdgeType:
			if edge.TargetID == dup.ID {
				edge.TargetID = survivor.ID
			}
			if edge.SourceID == dup.ID {
				edge.SourceID = survivor.ID
			}
			edge.UpdatedAt = now
			if err := m.driver.UpsertEdge(ctx, edge); err != nil {
				return err
			}
		}
	}

	if survivor.Summary == "" {
		survivor.Summary = dup.Summary
	} else if dup.Summary != "" && m.llm != nil {
		if combined, err := m.combineSummaries(ctx, survivor, dup); err == nil && combined != "" {
			survivor.Summary = combined
		}
	}
	survivor.UpdatedAt = now
	if err := m.driver.UpsertNode(ctx, survivor); err != nil {
		return err
	}

	if dup.Metadata == nil {
		dup.Metadata = make(map[string]interface{})
	}
	dup.Metadata["merged_into"] = survivor.ID
	dup.UpdatedAt = now
	return m.driver.UpsertNode(ctx, dup)
}

func (m *Manager) combineSummaries(ctx context.Context, survivor, dup *types.Node) (string, error) {
	messages, err := m.prompts.SummarizeNodes().SummarizePair().Call(map[string]interface{}{
		"summary_a": survivor.Summary,
		"summary_b": dup.Summary,
	})
	if err != nil {
		return "", err
	}
	raw, err := m.llm.ChatWithStructuredOutput(ctx, messages, prompts.EntitySummarySchema(), llm.ModelSizeSmall)
	if err != nil {
		return "", err
	}
	var parsed prompts.EntitySummary
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	return parsed.Summary, nil
}

func (m *Manager) loadEntities(ctx context.Context, groupID string) ([]*types.Node, error) {
	records, _, _, err := m.driver.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		WHERE n.metadata IS NULL OR NOT n.metadata CONTAINS 'merged_into'
		RETURN n.uuid AS uuid`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	rows, ok := records.([]map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected entity list result type %T", records)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, _ := row["uuid"].(string); id != "" {
			ids = append(ids, id)
		}
	}
	return m.driver.GetNodes(ctx, ids, groupID)
}

func countFromRecords(records interface{}, field string) int {
	rows, ok := records.([]map[string]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	switch v := rows[0][field].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
