package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// MemgraphDriver implements GraphDriver for Memgraph. Memgraph speaks the
// Bolt protocol and Cypher, so the Neo4j driver carries the CRUD surface;
// only index management and the vector/fulltext procedures differ.
type MemgraphDriver struct {
	*Neo4jDriver
}

// NewMemgraphDriver creates a new Memgraph driver instance.
func NewMemgraphDriver(uri, username, password, database string) (*MemgraphDriver, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create memgraph driver: %w", err)
	}

	if database == "" {
		database = "memgraph"
	}

	return &MemgraphDriver{
		Neo4jDriver: &Neo4jDriver{
			client:   client,
			database: database,
			provider: GraphProviderMemgraph,
		},
	}, nil
}

// CreateIndices creates Memgraph label/property, text and vector indexes.
func (m *MemgraphDriver) CreateIndices(ctx context.Context) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE INDEX ON :Entity(uuid)`,
		`CREATE INDEX ON :Episodic(uuid)`,
		`CREATE INDEX ON :Community(uuid)`,
		`CREATE INDEX ON :Entity(group_id)`,
		`CREATE INDEX ON :Episodic(group_id)`,
		`CREATE TEXT INDEX node_name_and_summary ON :Entity(name, summary)`,
		`CREATE TEXT INDEX episode_content ON :Episodic(content)`,
		`CREATE VECTOR INDEX entity_name_embedding ON :Entity(name_embedding)
			WITH CONFIG {"metric": "cos", "dimension": 1536, "capacity": 100000}`,
		`CREATE VECTOR INDEX episode_content_embedding ON :Episodic(content_embedding)
			WITH CONFIG {"metric": "cos", "dimension": 1536, "capacity": 100000}`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			// Memgraph has no IF NOT EXISTS for these; re-creation errors
			// on an existing index are expected and skipped.
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				continue
			}
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// DeleteAllIndexes drops the label/property, text and vector indexes
// created by CreateIndices. Memgraph's DROP syntax differs per kind.
func (m *MemgraphDriver) DeleteAllIndexes(ctx context.Context) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`DROP INDEX ON :Entity(uuid)`,
		`DROP INDEX ON :Episodic(uuid)`,
		`DROP INDEX ON :Community(uuid)`,
		`DROP INDEX ON :Entity(group_id)`,
		`DROP INDEX ON :Episodic(group_id)`,
		`DROP TEXT INDEX node_name_and_summary`,
		`DROP TEXT INDEX episode_content`,
		`DROP VECTOR INDEX entity_name_embedding`,
		`DROP VECTOR INDEX episode_content_embedding`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "doesn't exist") ||
				strings.Contains(strings.ToLower(err.Error()), "does not exist") {
				continue
			}
			return fmt.Errorf("failed to drop index: %w", err)
		}
	}
	return nil
}

// SearchNodesByEmbedding uses Memgraph's vector_search module.
func (m *MemgraphDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	return m.collectNodes(ctx, `
		CALL vector_search.search('entity_name_embedding', $limit, $embedding)
		YIELD node AS n, similarity
		WHERE n.group_id = $group_id
		RETURN n
	`, map[string]any{
		"embedding": toFloat64s(embedding),
		"group_id":  groupID,
		"limit":     limit,
	})
}

// SearchEdgesByEmbedding scans entity edges and ranks by cosine similarity
// client-side. Memgraph's vector indexes cover nodes only.
func (m *MemgraphDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	edges, err := m.collectEdges(ctx, `
		MATCH (a)-[e:RELATES_TO {group_id: $group_id}]->(b)
		WHERE e.fact_embedding IS NOT NULL
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{"group_id": groupID})
	if err != nil {
		return nil, err
	}

	type scored struct {
		edge  *types.Edge
		score float64
	}
	ranked := make([]scored, 0, len(edges))
	for _, e := range edges {
		ranked = append(ranked, scored{e, utils.CosineSimilarity(embedding, e.FactEmbedding)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*types.Edge, len(ranked))
	for i, r := range ranked {
		out[i] = r.edge
	}
	return out, nil
}

// SearchNodes uses Memgraph's text_search module.
func (m *MemgraphDriver) SearchNodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	sanitized := utils.LuceneSanitize(query)
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return m.collectNodes(ctx, `
		CALL text_search.search('node_name_and_summary', $query)
		YIELD node AS n
		WHERE n.group_id = $group_id
		RETURN n
		LIMIT $limit
	`, map[string]any{"query": sanitized, "group_id": groupID, "limit": limit})
}

// SearchEpisodesByEmbedding uses Memgraph's vector_search module over the
// episode content index.
func (m *MemgraphDriver) SearchEpisodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	return m.collectNodes(ctx, `
		CALL vector_search.search('episode_content_embedding', $limit, $embedding)
		YIELD node AS n, similarity
		WHERE n.group_id = $group_id
		RETURN n
	`, map[string]any{
		"embedding": toFloat64s(embedding),
		"group_id":  groupID,
		"limit":     limit,
	})
}

// SearchEpisodes uses Memgraph's text_search module over episode content.
func (m *MemgraphDriver) SearchEpisodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	sanitized := utils.LuceneSanitize(query)
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return m.collectNodes(ctx, `
		CALL text_search.search('episode_content', $query)
		YIELD node AS n
		WHERE n.group_id = $group_id
		RETURN n
		LIMIT $limit
	`, map[string]any{"query": sanitized, "group_id": groupID, "limit": limit})
}

// SearchEdges falls back to a CONTAINS scan over facts; Memgraph text
// indexes do not cover relationships.
func (m *MemgraphDriver) SearchEdges(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Edge, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	return m.collectEdges(ctx, `
		MATCH (a)-[e:RELATES_TO {group_id: $group_id}]->(b)
		WHERE toLower(e.fact) CONTAINS toLower($query)
		   OR toLower(e.name) CONTAINS toLower($query)
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
		LIMIT $limit
	`, map[string]any{"query": trimmed, "group_id": groupID, "limit": limit})
}
