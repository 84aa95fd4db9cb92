package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// Neo4jDriver implements GraphDriver for Neo4j databases.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
	provider GraphProvider
	// parallelRuntime prefixes bulk read queries with the enterprise
	// parallel runtime hint. Controlled by USE_PARALLEL_RUNTIME.
	parallelRuntime bool
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:          client,
		database:        database,
		provider:        GraphProviderNeo4j,
		parallelRuntime: utils.GetUseParallelRuntime(),
	}, nil
}

func (n *Neo4jDriver) readQuery(query string) string {
	if n.parallelRuntime {
		return "CYPHER runtime = parallel\n" + query
	}
	return query
}

func (n *Neo4jDriver) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

func nodeLabel(t types.NodeType) string {
	switch t {
	case types.EpisodicNodeType:
		return "Episodic"
	case types.CommunityNodeType:
		return "Community"
	default:
		return "Entity"
	}
}

// GetNode retrieves a node by UUID.
func (n *Neo4jDriver) GetNode(ctx context.Context, nodeID, groupID string) (*types.Node, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n {uuid: $uuid, group_id: $group_id})
			RETURN n
		`, map[string]any{"uuid": nodeID, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records := result.([]*neo4j.Record)
	if len(records) == 0 {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrNodeNotFound)
	}
	value, _ := records[0].Get("n")
	dbNode, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record value %T", value)
	}
	return nodeFromProps(dbNode.Props), nil
}

// UpsertNode creates or updates a node, keyed by uuid.
func (n *Neo4jDriver) UpsertNode(ctx context.Context, node *types.Node) error {
	if node == nil {
		return fmt.Errorf("cannot upsert nil node")
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (n:%s {uuid: $uuid})
		SET n += $props
	`, nodeLabel(node.Type))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"uuid":  node.ID,
			"props": nodeToProps(node),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}
	return nil
}

// DeleteNode detaches and deletes a node.
func (n *Neo4jDriver) DeleteNode(ctx context.Context, nodeID, groupID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n {uuid: $uuid, group_id: $group_id})
			DETACH DELETE n
		`, map[string]any{"uuid": nodeID, "group_id": groupID})
	})
	return err
}

// GetNodes retrieves nodes by UUIDs.
func (n *Neo4jDriver) GetNodes(ctx context.Context, nodeIDs []string, groupID string) ([]*types.Node, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	return n.collectNodes(ctx, `
		MATCH (n {group_id: $group_id})
		WHERE n.uuid IN $uuids
		RETURN n
	`, map[string]any{"uuids": nodeIDs, "group_id": groupID})
}

// GetEdge retrieves an edge by UUID.
func (n *Neo4jDriver) GetEdge(ctx context.Context, edgeID, groupID string) (*types.Edge, error) {
	edges, err := n.collectEdges(ctx, `
		MATCH (a)-[e {uuid: $uuid, group_id: $group_id}]->(b)
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{"uuid": edgeID, "group_id": groupID})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("edge %s: %w", edgeID, ErrEdgeNotFound)
	}
	return edges[0], nil
}

// UpsertEdge creates or updates an edge between existing nodes.
func (n *Neo4jDriver) UpsertEdge(ctx context.Context, edge *types.Edge) error {
	if edge == nil {
		return fmt.Errorf("cannot upsert nil edge")
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a {uuid: $source_uuid}), (b {uuid: $target_uuid})
		MERGE (a)-[e:%s {uuid: $uuid}]->(b)
		SET e += $props
	`, relationshipType(edge))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"source_uuid": edge.SourceID,
			"target_uuid": edge.TargetID,
			"uuid":        edge.ID,
			"props":       edgeToProps(edge),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s: %w", edge.ID, err)
	}
	return nil
}

// DeleteEdge removes an edge by UUID.
func (n *Neo4jDriver) DeleteEdge(ctx context.Context, edgeID, groupID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH ()-[e {uuid: $uuid, group_id: $group_id}]->()
			DELETE e
		`, map[string]any{"uuid": edgeID, "group_id": groupID})
	})
	return err
}

// GetEdges retrieves edges by UUIDs.
func (n *Neo4jDriver) GetEdges(ctx context.Context, edgeIDs []string, groupID string) ([]*types.Edge, error) {
	if len(edgeIDs) == 0 {
		return nil, nil
	}
	return n.collectEdges(ctx, `
		MATCH (a)-[e {group_id: $group_id}]->(b)
		WHERE e.uuid IN $uuids
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{"uuids": edgeIDs, "group_id": groupID})
}

// GetNeighbors returns nodes reachable within maxDistance hops.
func (n *Neo4jDriver) GetNeighbors(ctx context.Context, nodeID, groupID string, maxDistance int) ([]*types.Node, error) {
	if maxDistance < 1 {
		maxDistance = 1
	}
	query := fmt.Sprintf(`
		MATCH (start {uuid: $uuid, group_id: $group_id})-[*1..%d]-(n)
		WHERE n.group_id = $group_id
		RETURN DISTINCT n
	`, maxDistance)
	return n.collectNodes(ctx, query, map[string]any{"uuid": nodeID, "group_id": groupID})
}

// GetNeighborsWithDistance returns hop distances keyed by node UUID, used
// by the node-distance reranker.
func (n *Neo4jDriver) GetNeighborsWithDistance(ctx context.Context, nodeID, groupID string, maxDistance int) (map[string]int, error) {
	if maxDistance < 1 {
		maxDistance = 1
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH path = (start {uuid: $uuid, group_id: $group_id})-[*1..%d]-(n)
		WHERE n.group_id = $group_id AND n.uuid <> $uuid
		RETURN n.uuid AS uuid, min(length(path)) AS distance
	`, maxDistance)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"uuid": nodeID, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	distances := make(map[string]int)
	for _, record := range result.([]*neo4j.Record) {
		uuid, _ := record.Get("uuid")
		distance, _ := record.Get("distance")
		if u, ok := uuid.(string); ok {
			if d, ok := distance.(int64); ok {
				distances[u] = int(d)
			}
		}
	}
	return distances, nil
}

// GetEdgesByNode returns all edges touching a node.
func (n *Neo4jDriver) GetEdgesByNode(ctx context.Context, nodeID, groupID string) ([]*types.Edge, error) {
	return n.collectEdges(ctx, `
		MATCH (a)-[e {group_id: $group_id}]->(b)
		WHERE a.uuid = $uuid OR b.uuid = $uuid
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{"uuid": nodeID, "group_id": groupID})
}

// SearchNodesByEmbedding finds the nearest entity nodes by cosine distance
// over the name embedding vector index.
func (n *Neo4jDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	return n.collectNodes(ctx, `
		CALL db.index.vector.queryNodes('entity_name_embedding', $limit, $embedding)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
	`, map[string]any{
		"embedding": toFloat64s(embedding),
		"group_id":  groupID,
		"limit":     limit,
	})
}

// SearchEdgesByEmbedding finds the nearest entity edges by cosine distance
// over the fact embedding vector index.
func (n *Neo4jDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	return n.collectEdges(ctx, `
		CALL db.index.vector.queryRelationships('edge_fact_embedding', $limit, $embedding)
		YIELD relationship AS e, score
		WHERE e.group_id = $group_id
		MATCH (a)-[e]->(b)
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{
		"embedding": toFloat64s(embedding),
		"group_id":  groupID,
		"limit":     limit,
	})
}

// SearchNodes performs fulltext search over entity names and summaries.
func (n *Neo4jDriver) SearchNodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	sanitized := utils.LuceneSanitize(query)
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return n.collectNodes(ctx, `
		CALL db.index.fulltext.queryNodes('node_name_and_summary', $query)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
		LIMIT $limit
	`, map[string]any{"query": sanitized, "group_id": groupID, "limit": limit})
}

// SearchEdges performs fulltext search over edge facts.
func (n *Neo4jDriver) SearchEdges(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Edge, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	sanitized := utils.LuceneSanitize(query)
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return n.collectEdges(ctx, `
		CALL db.index.fulltext.queryRelationships('edge_name_and_fact', $query)
		YIELD relationship AS e, score
		WHERE e.group_id = $group_id
		MATCH (a)-[e]->(b)
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
		LIMIT $limit
	`, map[string]any{"query": sanitized, "group_id": groupID, "limit": limit})
}

// SearchEpisodesByEmbedding finds the nearest episodes by cosine distance
// over the content embedding vector index.
func (n *Neo4jDriver) SearchEpisodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	return n.collectNodes(ctx, `
		CALL db.index.vector.queryNodes('episode_content_embedding', $limit, $embedding)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
	`, map[string]any{
		"embedding": toFloat64s(embedding),
		"group_id":  groupID,
		"limit":     limit,
	})
}

// SearchEpisodes performs fulltext search over episode content.
func (n *Neo4jDriver) SearchEpisodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error) {
	limit := utils.DefaultPageLimit
	if options != nil && options.Limit > 0 {
		limit = options.Limit
	}
	sanitized := utils.LuceneSanitize(query)
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return n.collectNodes(ctx, `
		CALL db.index.fulltext.queryNodes('episode_content', $query)
		YIELD node AS n, score
		WHERE n.group_id = $group_id
		RETURN n
		LIMIT $limit
	`, map[string]any{"query": sanitized, "group_id": groupID, "limit": limit})
}

// UpsertNodes writes nodes in one transaction via UNWIND, grouped by label.
func (n *Neo4jDriver) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	byLabel := make(map[string][]map[string]any)
	for _, node := range nodes {
		label := nodeLabel(node.Type)
		byLabel[label] = append(byLabel[label], map[string]any{
			"uuid":  node.ID,
			"props": nodeToProps(node),
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for label, rows := range byLabel {
			query := fmt.Sprintf(`
				UNWIND $rows AS row
				MERGE (n:%s {uuid: row.uuid})
				SET n += row.props
			`, label)
			if _, err := tx.Run(ctx, query, map[string]any{"rows": rows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d nodes: %w", len(nodes), err)
	}
	return nil
}

// UpsertEdges writes edges in one transaction via UNWIND, grouped by
// relationship type. Referenced nodes must already exist.
func (n *Neo4jDriver) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	byType := make(map[string][]map[string]any)
	for _, edge := range edges {
		rel := relationshipType(edge)
		byType[rel] = append(byType[rel], map[string]any{
			"uuid":        edge.ID,
			"source_uuid": edge.SourceID,
			"target_uuid": edge.TargetID,
			"props":       edgeToProps(edge),
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for rel, rows := range byType {
			query := fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (a {uuid: row.source_uuid}), (b {uuid: row.target_uuid})
				MERGE (a)-[e:%s {uuid: row.uuid}]->(b)
				SET e += row.props
			`, rel)
			if _, err := tx.Run(ctx, query, map[string]any{"rows": rows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d edges: %w", len(edges), err)
	}
	return nil
}

// GetEpisodes returns the lastN most recent episodes for a group, ordered
// oldest first so callers can hand them to prompts as a context window.
func (n *Neo4jDriver) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error) {
	if lastN <= 0 {
		lastN = utils.DefaultEpisodeContextWindow
	}
	nodes, err := n.collectNodes(ctx, `
		MATCH (n:Episodic {group_id: $group_id})
		RETURN n
		ORDER BY n.valid_at DESC
		LIMIT $limit
	`, map[string]any{"group_id": groupID, "limit": lastN})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes, nil
}

// GetEdgesInTimeRange returns entity edges whose fact validity overlaps
// [start, end].
func (n *Neo4jDriver) GetEdgesInTimeRange(ctx context.Context, start, end time.Time, groupID string) ([]*types.Edge, error) {
	return n.collectEdges(ctx, `
		MATCH (a)-[e:RELATES_TO {group_id: $group_id}]->(b)
		WHERE e.valid_at <= $end
		  AND (e.invalid_at IS NULL OR e.invalid_at >= $start)
		RETURN e, a.uuid AS source_uuid, b.uuid AS target_uuid
	`, map[string]any{
		"group_id": groupID,
		"start":    utils.FormatTimeForDB(start),
		"end":      utils.FormatTimeForDB(end),
	})
}

// GetCommunities returns community nodes at a level.
func (n *Neo4jDriver) GetCommunities(ctx context.Context, groupID string, level int) ([]*types.Node, error) {
	return n.collectNodes(ctx, `
		MATCH (n:Community {group_id: $group_id})
		WHERE n.level = $level OR $level < 0
		RETURN n
	`, map[string]any{"group_id": groupID, "level": level})
}

// CreateIndices creates the range, fulltext and vector indexes the search
// and storage layers depend on. Idempotent.
func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE INDEX entity_uuid IF NOT EXISTS FOR (n:Entity) ON (n.uuid)`,
		`CREATE INDEX episodic_uuid IF NOT EXISTS FOR (n:Episodic) ON (n.uuid)`,
		`CREATE INDEX community_uuid IF NOT EXISTS FOR (n:Community) ON (n.uuid)`,
		`CREATE INDEX entity_group_id IF NOT EXISTS FOR (n:Entity) ON (n.group_id)`,
		`CREATE INDEX episodic_group_id IF NOT EXISTS FOR (n:Episodic) ON (n.group_id)`,
		`CREATE INDEX relates_to_uuid IF NOT EXISTS FOR ()-[e:RELATES_TO]-() ON (e.uuid)`,
		`CREATE INDEX mentions_uuid IF NOT EXISTS FOR ()-[e:MENTIONS]-() ON (e.uuid)`,
		`CREATE FULLTEXT INDEX node_name_and_summary IF NOT EXISTS
			FOR (n:Entity) ON EACH [n.name, n.summary]`,
		`CREATE FULLTEXT INDEX edge_name_and_fact IF NOT EXISTS
			FOR ()-[e:RELATES_TO]-() ON EACH [e.name, e.fact]`,
		`CREATE FULLTEXT INDEX episode_content IF NOT EXISTS
			FOR (n:Episodic) ON EACH [n.content]`,
		`CREATE VECTOR INDEX entity_name_embedding IF NOT EXISTS
			FOR (n:Entity) ON (n.name_embedding)
			OPTIONS {indexConfig: {` + "`vector.similarity_function`" + `: 'cosine'}}`,
		`CREATE VECTOR INDEX edge_fact_embedding IF NOT EXISTS
			FOR ()-[e:RELATES_TO]-() ON (e.fact_embedding)
			OPTIONS {indexConfig: {` + "`vector.similarity_function`" + `: 'cosine'}}`,
		`CREATE VECTOR INDEX episode_content_embedding IF NOT EXISTS
			FOR (n:Episodic) ON (n.content_embedding)
			OPTIONS {indexConfig: {` + "`vector.similarity_function`" + `: 'cosine'}}`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// DeleteAllIndexes drops every index and constraint in the database.
func (n *Neo4jDriver) DeleteAllIndexes(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `SHOW INDEXES YIELD name RETURN name`, nil)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		value, _ := record.Get("name")
		name, ok := value.(string)
		if !ok || name == "" {
			continue
		}
		stmt := fmt.Sprintf("DROP INDEX %s IF EXISTS", name)
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", name, err)
		}
	}
	return nil
}

// ClearGroup removes every node and edge belonging to a group.
func (n *Neo4jDriver) ClearGroup(ctx context.Context, groupID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n {group_id: $group_id})
			DETACH DELETE n
		`, map[string]any{"group_id": groupID})
	})
	return err
}

// GetStats returns aggregate counts for a group.
func (n *Neo4jDriver) GetStats(ctx context.Context, groupID string) (*GraphStats, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n {group_id: $group_id})
			OPTIONAL MATCH (n)-[e {group_id: $group_id}]->()
			RETURN labels(n)[0] AS label, count(DISTINCT n) AS nodes, count(e) AS edges
		`, map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	stats := &GraphStats{
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
		LastUpdated: utils.UTCNow(),
	}
	for _, record := range result.([]*neo4j.Record) {
		label, _ := record.Get("label")
		nodes, _ := record.Get("nodes")
		edges, _ := record.Get("edges")
		l, _ := label.(string)
		nc, _ := nodes.(int64)
		ec, _ := edges.(int64)
		stats.NodeCount += nc
		stats.EdgeCount += ec
		stats.NodesByType[l] += nc
		if l == "Community" {
			stats.CommunityCount += nc
		}
	}
	return stats, nil
}

// ExecuteQuery runs a raw cypher query and returns records as
// []map[string]interface{} alongside the column header and summary.
func (n *Neo4jDriver) ExecuteQuery(query string, params map[string]interface{}) (interface{}, interface{}, interface{}, error) {
	ctx := context.Background()
	result, err := neo4j.ExecuteQuery(ctx, n.client, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return nil, nil, nil, err
	}

	records := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		row := make(map[string]interface{}, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		records = append(records, row)
	}
	return records, result.Keys, result.Summary, nil
}

// Provider reports the backing database kind.
func (n *Neo4jDriver) Provider() GraphProvider {
	return n.provider
}

// Close releases the underlying bolt driver.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func (n *Neo4jDriver) collectNodes(ctx context.Context, query string, params map[string]any) ([]*types.Node, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, n.readQuery(query), params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	var nodes []*types.Node
	for _, record := range result.([]*neo4j.Record) {
		value, _ := record.Get("n")
		if dbNode, ok := value.(dbtype.Node); ok {
			nodes = append(nodes, nodeFromProps(dbNode.Props))
		}
	}
	return nodes, nil
}

func (n *Neo4jDriver) collectEdges(ctx context.Context, query string, params map[string]any) ([]*types.Edge, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, n.readQuery(query), params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	var edges []*types.Edge
	for _, record := range result.([]*neo4j.Record) {
		value, _ := record.Get("e")
		rel, ok := value.(dbtype.Relationship)
		if !ok {
			continue
		}
		sourceID, _ := record.Get("source_uuid")
		targetID, _ := record.Get("target_uuid")
		src, _ := sourceID.(string)
		dst, _ := targetID.(string)
		edges = append(edges, edgeFromProps(rel.Type, rel.Props, src, dst))
	}
	return edges, nil
}
