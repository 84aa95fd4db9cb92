package graphmem

import (
	"context"
	"fmt"

	"github.com/soundprediction/graphmem/pkg/search"
	"github.com/soundprediction/graphmem/pkg/types"
)

// NewDefaultSearchConfig returns the default hybrid search configuration:
// similarity plus fulltext over nodes and edges, fused with RRF.
func NewDefaultSearchConfig() *types.SearchConfig {
	return &types.SearchConfig{
		Limit:        20,
		IncludeEdges: true,
		Rerank:       true,
		NodeConfig: &types.NodeSearchConfig{
			SearchMethods: []string{string(search.CosineSimilarity), string(search.BM25)},
			Reranker:      string(search.RRFRerankType),
		},
		EdgeConfig: &types.EdgeSearchConfig{
			SearchMethods: []string{string(search.CosineSimilarity), string(search.BM25)},
			Reranker:      string(search.RRFRerankType),
		},
	}
}

// Search performs hybrid search across the knowledge graph.
func (c *Client) Search(ctx context.Context, query string, config *types.SearchConfig) (*types.SearchResults, error) {
	if config == nil {
		config = c.config.SearchConfig
	}

	groupID := c.config.GroupID
	if config.Filters != nil && len(config.Filters.GroupIDs) > 0 {
		groupID = config.Filters.GroupIDs[0]
	}

	result, err := c.searcher.Search(ctx, query, groupID, toSearchConfig(config))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := &types.SearchResults{
		Nodes:         result.Nodes,
		Edges:         result.Edges,
		Episodes:      result.Episodes,
		NodeScores:    result.NodeScores,
		EdgeScores:    result.EdgeScores,
		EpisodeScores: result.EpisodeScores,
		Query:         query,
		Total:         len(result.Nodes) + len(result.Edges) + len(result.Episodes),
	}

	if config.Filters != nil {
		applyFilters(results, config.Filters)
	}
	return results, nil
}

// toSearchConfig translates the public search configuration into the
// search package's typed form.
func toSearchConfig(config *types.SearchConfig) *search.Config {
	out := &search.Config{
		Limit:              config.Limit,
		RRFK:               search.DefaultRRFK,
		CenterNodeID:       config.CenterNodeID,
		CenterNodeDistance: config.CenterNodeDistance,
		MinScore:           config.MinScore,
		IncludeInvalidated: config.IncludeInvalidated,
	}

	if config.NodeConfig != nil {
		out.NodeConfig = &search.NodeConfig{
			SearchMethods: toSearchMethods(config.NodeConfig.SearchMethods),
			Reranker:      search.RerankerType(config.NodeConfig.Reranker),
			MinScore:      config.NodeConfig.MinScore,
		}
	} else {
		out.NodeConfig = &search.NodeConfig{
			SearchMethods: []search.SearchMethod{search.CosineSimilarity, search.BM25},
			Reranker:      search.RRFRerankType,
		}
	}

	if config.EdgeConfig != nil {
		out.EdgeConfig = &search.EdgeConfig{
			SearchMethods: toSearchMethods(config.EdgeConfig.SearchMethods),
			Reranker:      search.RerankerType(config.EdgeConfig.Reranker),
			MinScore:      config.EdgeConfig.MinScore,
		}
	} else if config.IncludeEdges {
		out.EdgeConfig = &search.EdgeConfig{
			SearchMethods: []search.SearchMethod{search.CosineSimilarity, search.BM25},
			Reranker:      search.RRFRerankType,
		}
	}

	if config.EpisodeConfig != nil {
		out.EpisodeConfig = &search.EpisodeConfig{
			SearchMethods: toSearchMethods(config.EpisodeConfig.SearchMethods),
			Reranker:      search.RerankerType(config.EpisodeConfig.Reranker),
			MinScore:      config.EpisodeConfig.MinScore,
		}
	} else if config.IncludeEpisodes {
		out.EpisodeConfig = &search.EpisodeConfig{
			SearchMethods: []search.SearchMethod{search.CosineSimilarity, search.BM25},
			Reranker:      search.RRFRerankType,
		}
	}

	if !config.Rerank {
		out.NodeConfig.Reranker = search.RRFRerankType
		if out.EdgeConfig != nil {
			out.EdgeConfig.Reranker = search.RRFRerankType
		}
		if out.EpisodeConfig != nil {
			out.EpisodeConfig.Reranker = search.RRFRerankType
		}
	}
	return out
}

func toSearchMethods(methods []string) []search.SearchMethod {
	if len(methods) == 0 {
		return []search.SearchMethod{search.CosineSimilarity, search.BM25}
	}
	out := make([]search.SearchMethod, len(methods))
	for i, m := range methods {
		out[i] = search.SearchMethod(m)
	}
	return out
}

// applyFilters drops results outside the requested types and time range.
func applyFilters(results *types.SearchResults, filters *types.SearchFilters) {
	if len(filters.NodeTypes) > 0 {
		kept := results.Nodes[:0]
		for _, n := range results.Nodes {
			for _, t := range filters.NodeTypes {
				if n.Type == t {
					kept = append(kept, n)
					break
				}
			}
		}
		results.Nodes = kept
	}

	if len(filters.EntityTypes) > 0 {
		kept := results.Nodes[:0]
		for _, n := range results.Nodes {
			for _, t := range filters.EntityTypes {
				if n.EntityType == t {
					kept = append(kept, n)
					break
				}
			}
		}
		results.Nodes = kept
	}

	if len(filters.EdgeTypes) > 0 {
		kept := results.Edges[:0]
		for _, e := range results.Edges {
			for _, t := range filters.EdgeTypes {
				if e.Type == t {
					kept = append(kept, e)
					break
				}
			}
		}
		results.Edges = kept
	}

	if filters.TimeRange != nil {
		kept := results.Edges[:0]
		for _, e := range results.Edges {
			if e.IsValidAt(filters.TimeRange.Start) || e.IsValidAt(filters.TimeRange.End) {
				kept = append(kept, e)
			}
		}
		results.Edges = kept
	}

	results.Total = len(results.Nodes) + len(results.Edges) + len(results.Episodes)
}
