package graphmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/prompts"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

const resolveCandidateLimit = 10

// Add ingests episodes sequentially. A failed episode stops the batch;
// results for already processed episodes are still returned.
func (c *Client) Add(ctx context.Context, episodes []types.Episode) ([]*types.AddEpisodeResults, error) {
	results := make([]*types.AddEpisodeResults, 0, len(episodes))
	for _, episode := range episodes {
		result, err := c.AddEpisode(ctx, episode)
		if err != nil {
			return results, fmt.Errorf("failed to process episode %s: %w", episode.ID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// AddEpisode runs one episode through the extraction pipeline: persist
// the episode, extract and resolve entities, extract facts, reconcile
// them temporally against the graph, then write everything back.
//
// Extraction failures degrade rather than fail: the episode node is
// still persisted and the errors are reported in the result.
func (c *Client) AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error) {
	if episode.GroupID == "" {
		episode.GroupID = c.config.GroupID
	}
	if err := utils.ValidateGroupID(episode.GroupID); err != nil {
		return nil, err
	}
	if episode.ID == "" {
		episode.ID = utils.GenerateUUID()
	}
	if episode.Reference.IsZero() {
		episode.Reference = utils.UTCNow()
	}
	if episode.Source == "" {
		episode.Source = types.MessageSource
	}

	result := &types.AddEpisodeResults{}

	previous, err := c.driver.GetEpisodes(ctx, episode.GroupID, c.config.EpisodeContextWindow)
	if err != nil {
		c.logger.Warn("failed to load previous episodes", "group_id", episode.GroupID, "error", err)
		result.Errors = append(result.Errors, err)
	}

	episodeNode, err := c.persistEpisodeNode(ctx, episode)
	if err != nil {
		return nil, err
	}
	result.Episode = episodeNode

	if c.llm == nil {
		return result, nil
	}

	extracted, err := c.extractEntities(ctx, episode, previous)
	if err != nil {
		c.logger.Warn("entity extraction failed, episode stored without entities",
			"episode_id", episode.ID, "error", err)
		result.Errors = append(result.Errors, err)
		return result, nil
	}
	if len(extracted) == 0 {
		return result, nil
	}

	if err := c.embedNodeNames(ctx, extracted); err != nil {
		result.Errors = append(result.Errors, err)
		return result, nil
	}

	resolved, resolveErrs := c.resolveEntities(ctx, extracted, episode, previous)
	result.Errors = append(result.Errors, resolveErrs...)

	if err := c.driver.UpsertNodes(ctx, resolved); err != nil {
		return nil, fmt.Errorf("failed to store entity nodes: %w", err)
	}
	result.Nodes = resolved

	episodicEdges := c.buildEpisodicEdges(episodeNode, resolved, episode.Reference)
	if err := c.driver.UpsertEdges(ctx, episodicEdges); err != nil {
		return nil, fmt.Errorf("failed to store episodic edges: %w", err)
	}
	result.EpisodicEdges = episodicEdges

	edges, err := c.extractEdges(ctx, episode, previous, resolved)
	if err != nil {
		c.logger.Warn("edge extraction failed, episode stored without facts",
			"episode_id", episode.ID, "error", err)
		result.Errors = append(result.Errors, err)
		return result, nil
	}
	if len(edges) == 0 {
		return result, nil
	}

	if err := c.embedEdgeFacts(ctx, edges); err != nil {
		result.Errors = append(result.Errors, err)
		return result, nil
	}

	kept, touched, reconcileErrs := c.reconcileEdges(ctx, edges, episode)
	result.Errors = append(result.Errors, reconcileErrs...)

	toWrite := append(append([]*types.Edge{}, kept...), touched...)
	if err := c.driver.UpsertEdges(ctx, toWrite); err != nil {
		return nil, fmt.Errorf("failed to store entity edges: %w", err)
	}
	result.Edges = kept

	// Record edge provenance on the episode for cascade removal.
	for _, edge := range kept {
		episodeNode.EntityEdges = append(episodeNode.EntityEdges, edge.ID)
	}
	for _, edge := range touched {
		episodeNode.EntityEdges = append(episodeNode.EntityEdges, edge.ID)
	}
	episodeNode.UpdatedAt = utils.UTCNow()
	if err := c.driver.UpsertNode(ctx, episodeNode); err != nil {
		return nil, fmt.Errorf("failed to update episode provenance: %w", err)
	}

	return result, nil
}

func (c *Client) persistEpisodeNode(ctx context.Context, episode types.Episode) (*types.Node, error) {
	now := utils.UTCNow()

	var embedding []float32
	if c.embedder != nil {
		vec, err := c.embedder.EmbedSingle(ctx, episode.Content)
		if err != nil {
			c.logger.Warn("failed to embed episode content", "episode_id", episode.ID, "error", err)
		} else {
			embedding = vec
		}
	}

	node := &types.Node{
		ID:                episode.ID,
		Name:              episode.Name,
		Type:              types.EpisodicNodeType,
		GroupID:           episode.GroupID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Source:            episode.Source,
		SourceDescription: episode.SourceDescription,
		Content:           episode.Content,
		ContentEmbedding:  embedding,
		ValidAt:           utils.EnsureUTC(episode.Reference),
		Metadata:          episode.Metadata,
	}
	if err := c.driver.UpsertNode(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to create episode node: %w", err)
	}
	return node, nil
}

func (c *Client) extractEntities(ctx context.Context, episode types.Episode, previous []*types.Node) ([]*types.Node, error) {
	promptContext := map[string]interface{}{
		"entity_types":       c.entityTypesContext(),
		"previous_episodes":  episodeContents(previous),
		"episode_content":    episode.Content,
		"source_description": episode.SourceDescription,
		"custom_prompt":      "",
	}

	var version prompts.PromptVersion
	switch episode.Source {
	case types.MessageSource:
		version = c.prompts.ExtractNodes().ExtractMessage()
	case types.JSONSource:
		version = c.prompts.ExtractNodes().ExtractJSON()
	default:
		version = c.prompts.ExtractNodes().ExtractText()
	}

	entities, err := c.callExtractEntities(ctx, version, promptContext)
	if err != nil {
		return nil, err
	}

	for i := 0; i < c.config.MaxReflexionIterations; i++ {
		missed, err := c.reflexionPass(ctx, episode, previous, entities)
		if err != nil {
			c.logger.Warn("reflexion pass failed", "episode_id", episode.ID, "error", err)
			break
		}
		if len(missed) == 0 {
			break
		}
		promptContext["custom_prompt"] = "Make sure the following entities are extracted: " + strings.Join(missed, ", ")
		entities, err = c.callExtractEntities(ctx, version, promptContext)
		if err != nil {
			return nil, err
		}
	}

	now := utils.UTCNow()
	typeNames := c.entityTypeNames()
	seen := make(map[string]bool)
	nodes := make([]*types.Node, 0, len(entities))
	for _, entity := range entities {
		name := utils.NormalizeName(entity.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		entityType := "Entity"
		if entity.EntityTypeID >= 0 && entity.EntityTypeID < len(typeNames) {
			entityType = typeNames[entity.EntityTypeID]
		}
		nodes = append(nodes, &types.Node{
			ID:         utils.GenerateUUID(),
			Name:       name,
			Type:       types.EntityNodeType,
			GroupID:    episode.GroupID,
			CreatedAt:  now,
			UpdatedAt:  now,
			EntityType: entityType,
			Summary:    entity.Summary,
		})
	}
	return nodes, nil
}

func (c *Client) callExtractEntities(ctx context.Context, version prompts.PromptVersion, promptContext map[string]interface{}) ([]prompts.ExtractedEntity, error) {
	messages, err := version.Call(promptContext)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction prompt: %w", err)
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.ExtractedEntitiesSchema(), llm.ModelSizeMedium)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}
	var parsed prompts.ExtractedEntities
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extracted entities: %w", err)
	}
	return parsed.Entities, nil
}

func (c *Client) reflexionPass(ctx context.Context, episode types.Episode, previous []*types.Node, entities []prompts.ExtractedEntity) ([]string, error) {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	messages, err := c.prompts.ExtractNodes().Reflexion().Call(map[string]interface{}{
		"previous_episodes":  episodeContents(previous),
		"episode_content":    episode.Content,
		"extracted_entities": names,
	})
	if err != nil {
		return nil, err
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.MissedEntitiesSchema(), llm.ModelSizeSmall)
	if err != nil {
		return nil, err
	}
	var parsed prompts.MissedEntities
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.MissedEntities, nil
}

func (c *Client) embedNodeNames(ctx context.Context, nodes []*types.Node) error {
	if c.embedder == nil {
		return nil
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	vectors, err := c.embedder.Embed(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to embed entity names: %w", err)
	}
	for i, n := range nodes {
		n.NameEmbedding = vectors[i]
	}
	return nil
}

// resolveEntities matches extracted entities against existing graph
// entities. Exact normalized-name matches resolve directly; the rest go
// through one LLM resolution call over the pooled candidates. On LLM
// failure entities stay unresolved and are created as new nodes.
func (c *Client) resolveEntities(ctx context.Context, extracted []*types.Node, episode types.Episode, previous []*types.Node) ([]*types.Node, []error) {
	candidates := c.collectResolutionCandidates(ctx, extracted, episode.GroupID)

	var errs []error
	resolved := make([]*types.Node, len(extracted))
	unresolved := make([]int, 0, len(extracted))

	for i, node := range extracted {
		if match := exactNameMatch(node.Name, candidates); match != nil {
			resolved[i] = mergeEntity(match, node)
			continue
		}
		unresolved = append(unresolved, i)
	}

	if len(unresolved) > 0 && len(candidates) > 0 {
		resolutions, err := c.resolveWithLLM(ctx, extracted, unresolved, candidates, episode, previous)
		if err != nil {
			c.logger.Warn("entity resolution failed, keeping extracted entities as new",
				"episode_id", episode.ID, "error", err)
			errs = append(errs, err)
		} else {
			for _, res := range resolutions {
				if res.ID < 0 || res.ID >= len(extracted) || resolved[res.ID] != nil {
					continue
				}
				if res.DuplicateIdx >= 0 && res.DuplicateIdx < len(candidates) {
					resolved[res.ID] = mergeEntity(candidates[res.DuplicateIdx], extracted[res.ID])
				}
			}
		}
	}

	out := make([]*types.Node, 0, len(extracted))
	byID := make(map[string]bool)
	for i, node := range extracted {
		final := resolved[i]
		if final == nil {
			final = node
		}
		if byID[final.ID] {
			continue
		}
		byID[final.ID] = true
		out = append(out, final)
	}
	return out, errs
}

func (c *Client) collectResolutionCandidates(ctx context.Context, extracted []*types.Node, groupID string) []*types.Node {
	sem := make(chan struct{}, c.config.ResolveConcurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	byID := make(map[string]*types.Node)

	for _, node := range extracted {
		wg.Add(1)
		go func(node *types.Node) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var found []*types.Node
			if len(node.NameEmbedding) > 0 {
				similar, err := c.driver.SearchNodesByEmbedding(ctx, node.NameEmbedding, groupID, resolveCandidateLimit)
				if err == nil {
					found = append(found, similar...)
				}
			}
			matches, err := c.driver.SearchNodes(ctx, node.Name, groupID, nil)
			if err == nil {
				found = append(found, matches...)
			}

			mu.Lock()
			for _, n := range found {
				if n.Type == types.EntityNodeType {
					byID[n.ID] = n
				}
			}
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	candidates := make([]*types.Node, 0, len(byID))
	for _, n := range byID {
		candidates = append(candidates, n)
	}
	return candidates
}

func (c *Client) resolveWithLLM(ctx context.Context, extracted []*types.Node, unresolved []int, candidates []*types.Node, episode types.Episode, previous []*types.Node) ([]prompts.NodeDuplicate, error) {
	newEntities := make([]map[string]interface{}, 0, len(unresolved))
	for _, i := range unresolved {
		newEntities = append(newEntities, map[string]interface{}{
			"id":          i,
			"name":        extracted[i].Name,
			"entity_type": extracted[i].EntityType,
		})
	}
	existing := make([]map[string]interface{}, 0, len(candidates))
	for idx, n := range candidates {
		existing = append(existing, map[string]interface{}{
			"idx":         idx,
			"name":        n.Name,
			"entity_type": n.EntityType,
			"summary":     n.Summary,
		})
	}

	messages, err := c.prompts.DedupeNodes().Nodes().Call(map[string]interface{}{
		"extracted_nodes":   newEntities,
		"existing_nodes":    existing,
		"previous_episodes": episodeContents(previous),
		"episode_content":   episode.Content,
	})
	if err != nil {
		return nil, err
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.NodeResolutionsSchema(), llm.ModelSizeSmall)
	if err != nil {
		return nil, err
	}
	var parsed prompts.NodeResolutions
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.EntityResolutions, nil
}

func (c *Client) buildEpisodicEdges(episode *types.Node, nodes []*types.Node, reference time.Time) []*types.Edge {
	now := utils.UTCNow()
	edges := make([]*types.Edge, 0, len(nodes))
	for _, node := range nodes {
		// Identity derived from the endpoints keeps re-ingesting the
		// same episode from duplicating its MENTIONS edges.
		edges = append(edges, &types.Edge{
			ID:        utils.DeterministicUUID(episode.ID, node.ID),
			Type:      types.EpisodicEdgeType,
			GroupID:   episode.GroupID,
			SourceID:  episode.ID,
			TargetID:  node.ID,
			CreatedAt: now,
			UpdatedAt: now,
			Name:      string(types.EpisodicEdgeType),
			ValidAt:   utils.EnsureUTC(reference),
		})
	}
	return edges
}

func (c *Client) extractEdges(ctx context.Context, episode types.Episode, previous []*types.Node, nodes []*types.Node) ([]*types.Edge, error) {
	if len(nodes) < 2 {
		return nil, nil
	}

	entityList := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		entityList[i] = map[string]interface{}{"id": i, "name": n.Name, "entity_type": n.EntityType}
	}

	messages, err := c.prompts.ExtractEdges().Edge().Call(map[string]interface{}{
		"nodes":             entityList,
		"previous_episodes": episodeContents(previous),
		"episode_content":   episode.Content,
		"reference_time":    utils.FormatTimeForDB(episode.Reference),
		"custom_prompt":     "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build edge extraction prompt: %w", err)
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.ExtractedEdgesSchema(), llm.ModelSizeMedium)
	if err != nil {
		return nil, fmt.Errorf("edge extraction failed: %w", err)
	}
	var parsed prompts.ExtractedEdges
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extracted edges: %w", err)
	}

	now := utils.UTCNow()
	edges := make([]*types.Edge, 0, len(parsed.Edges))
	for _, e := range parsed.Edges {
		if strings.TrimSpace(e.Fact) == "" {
			continue
		}
		if e.SourceEntity < 0 || e.SourceEntity >= len(nodes) ||
			e.TargetEntity < 0 || e.TargetEntity >= len(nodes) ||
			e.SourceEntity == e.TargetEntity {
			continue
		}

		validAt := utils.EnsureUTC(episode.Reference)
		if t, err := time.Parse(time.RFC3339, e.ValidAt); err == nil {
			validAt = t.UTC()
		}
		var invalidAt *time.Time
		if t, err := time.Parse(time.RFC3339, e.InvalidAt); err == nil {
			utc := t.UTC()
			invalidAt = &utc
		}

		edges = append(edges, &types.Edge{
			ID:        utils.GenerateUUID(),
			Type:      types.EntityEdgeType,
			GroupID:   episode.GroupID,
			SourceID:  nodes[e.SourceEntity].ID,
			TargetID:  nodes[e.TargetEntity].ID,
			CreatedAt: now,
			UpdatedAt: now,
			Name:      strings.ToUpper(strings.TrimSpace(e.RelationType)),
			Fact:      e.Fact,
			Episodes:  []string{episode.ID},
			ValidAt:   validAt,
			InvalidAt: invalidAt,
		})
	}
	return edges, nil
}

func (c *Client) embedEdgeFacts(ctx context.Context, edges []*types.Edge) error {
	if c.embedder == nil {
		return nil
	}
	facts := make([]string, len(edges))
	for i, e := range edges {
		facts[i] = e.Fact
	}
	vectors, err := c.embedder.Embed(ctx, facts)
	if err != nil {
		return fmt.Errorf("failed to embed facts: %w", err)
	}
	for i, e := range edges {
		e.FactEmbedding = vectors[i]
	}
	return nil
}

// reconcileEdges dedupes each new edge against existing facts between the
// same entity pair and invalidates existing facts the new one supersedes.
// Returns the new edges to create and the existing edges it modified.
func (c *Client) reconcileEdges(ctx context.Context, edges []*types.Edge, episode types.Episode) (kept []*types.Edge, touched []*types.Edge, errs []error) {
	touchedByID := make(map[string]*types.Edge)

	for _, edge := range edges {
		existing, err := c.existingEdgesBetween(ctx, edge)
		if err != nil {
			errs = append(errs, err)
			kept = append(kept, edge)
			continue
		}
		if len(existing) == 0 {
			kept = append(kept, edge)
			continue
		}

		duplicate, contradicted, err := c.classifyEdge(ctx, edge, existing)
		if err != nil {
			c.logger.Warn("edge dedupe failed, keeping new fact", "edge_id", edge.ID, "error", err)
			errs = append(errs, err)
			kept = append(kept, edge)
			continue
		}

		if duplicate != nil {
			// Merge provenance into the surviving edge; earliest
			// validity wins.
			merged := false
			for _, id := range duplicate.Episodes {
				if id == episode.ID {
					merged = true
				}
			}
			if !merged {
				duplicate.Episodes = append(duplicate.Episodes, episode.ID)
			}
			if edge.ValidAt.Before(duplicate.ValidAt) {
				duplicate.ValidAt = edge.ValidAt
			}
			duplicate.UpdatedAt = utils.UTCNow()
			touchedByID[duplicate.ID] = duplicate
			continue
		}

		kept = append(kept, edge)

		invalidated, err := c.invalidateEdges(ctx, edge, contradicted)
		if err != nil {
			c.logger.Warn("temporal reconciliation failed, facts left valid", "edge_id", edge.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, old := range invalidated {
			invalidAt := edge.ValidAt
			old.InvalidAt = &invalidAt
			old.UpdatedAt = utils.UTCNow()
			touchedByID[old.ID] = old
		}
	}

	for _, e := range touchedByID {
		touched = append(touched, e)
	}
	return kept, touched, errs
}

func (c *Client) existingEdgesBetween(ctx context.Context, edge *types.Edge) ([]*types.Edge, error) {
	all, err := c.driver.GetEdgesByNode(ctx, edge.SourceID, edge.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing edges: %w", err)
	}
	var out []*types.Edge
	for _, e := range all {
		if e.Type != types.EntityEdgeType || e.ExpiredAt != nil {
			continue
		}
		if (e.SourceID == edge.SourceID && e.TargetID == edge.TargetID) ||
			(e.SourceID == edge.TargetID && e.TargetID == edge.SourceID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// classifyEdge returns the existing duplicate of the new edge (or nil)
// plus the existing edges it contradicts.
func (c *Client) classifyEdge(ctx context.Context, edge *types.Edge, existing []*types.Edge) (*types.Edge, []*types.Edge, error) {
	existingFacts := make([]map[string]interface{}, len(existing))
	for i, e := range existing {
		existingFacts[i] = map[string]interface{}{"idx": i, "fact": e.Fact}
	}
	messages, err := c.prompts.DedupeEdges().ResolveEdge().Call(map[string]interface{}{
		"new_edge":       edge.Fact,
		"existing_edges": existingFacts,
	})
	if err != nil {
		return nil, nil, err
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.EdgeDuplicateSchema(), llm.ModelSizeSmall)
	if err != nil {
		return nil, nil, err
	}
	var parsed prompts.EdgeDuplicate
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, err
	}

	var duplicate *types.Edge
	for _, idx := range parsed.DuplicateFacts {
		if idx >= 0 && idx < len(existing) {
			duplicate = existing[idx]
			break
		}
	}
	var contradicted []*types.Edge
	for _, idx := range parsed.ContradictedFacts {
		if idx >= 0 && idx < len(existing) {
			contradicted = append(contradicted, existing[idx])
		}
	}
	return duplicate, contradicted, nil
}

// invalidateEdges asks which of the contradicted facts can no longer
// hold once the new fact is true. Already invalid edges are skipped.
func (c *Client) invalidateEdges(ctx context.Context, edge *types.Edge, contradicted []*types.Edge) ([]*types.Edge, error) {
	candidates := make([]*types.Edge, 0, len(contradicted))
	for _, e := range contradicted {
		if e.InvalidAt == nil {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	existingFacts := make([]map[string]interface{}, len(candidates))
	for i, e := range candidates {
		existingFacts[i] = map[string]interface{}{
			"idx":      i,
			"fact":     e.Fact,
			"valid_at": utils.FormatTimeForDB(e.ValidAt),
		}
	}
	messages, err := c.prompts.InvalidateEdges().Invalidate().Call(map[string]interface{}{
		"new_edge":       edge.Fact,
		"valid_at":       utils.FormatTimeForDB(edge.ValidAt),
		"existing_edges": existingFacts,
	})
	if err != nil {
		return nil, err
	}
	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, prompts.InvalidatedEdgesSchema(), llm.ModelSizeSmall)
	if err != nil {
		return nil, err
	}
	var parsed prompts.InvalidatedEdges
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	var out []*types.Edge
	for _, idx := range parsed.InvalidatedEdges {
		if idx >= 0 && idx < len(candidates) {
			out = append(out, candidates[idx])
		}
	}
	return out, nil
}

func (c *Client) entityTypesContext() []map[string]interface{} {
	out := []map[string]interface{}{{
		"entity_type_id":          0,
		"entity_type_name":        "Entity",
		"entity_type_description": "Default classification when no other type fits.",
	}}
	for i, name := range sortedKeys(c.config.EntityTypes) {
		out = append(out, map[string]interface{}{
			"entity_type_id":          i + 1,
			"entity_type_name":        name,
			"entity_type_description": c.config.EntityTypes[name],
		})
	}
	return out
}

func (c *Client) entityTypeNames() []string {
	names := []string{"Entity"}
	return append(names, sortedKeys(c.config.EntityTypes)...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func episodeContents(episodes []*types.Node) []string {
	out := make([]string, 0, len(episodes))
	for _, e := range episodes {
		out = append(out, e.Content)
	}
	return out
}

// mergeEntity folds a newly extracted entity into its existing node.
func mergeEntity(existing, extracted *types.Node) *types.Node {
	merged := *existing
	if merged.Summary == "" {
		merged.Summary = extracted.Summary
	}
	if len(extracted.NameEmbedding) > 0 {
		merged.NameEmbedding = extracted.NameEmbedding
	}
	if merged.EntityType == "" || merged.EntityType == "Entity" {
		if extracted.EntityType != "" {
			merged.EntityType = extracted.EntityType
		}
	}
	merged.UpdatedAt = utils.UTCNow()
	return &merged
}

func exactNameMatch(name string, candidates []*types.Node) *types.Node {
	normalized := utils.NormalizeName(name)
	for _, c := range candidates {
		if utils.NormalizeName(c.Name) == normalized {
			return c
		}
	}
	return nil
}
