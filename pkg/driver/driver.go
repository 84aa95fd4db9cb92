package driver

import (
	"context"
	"errors"
	"time"

	"github.com/soundprediction/graphmem/pkg/types"
)

// Lookup misses are reported with typed errors so callers can tell an
// unknown id apart from a database failure.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// GraphProvider identifies the backing graph database.
type GraphProvider string

const (
	GraphProviderNeo4j    GraphProvider = "neo4j"
	GraphProviderMemgraph GraphProvider = "memgraph"
)

// GraphDriver is the storage seam for the knowledge graph. Implementations
// wrap a graph database and translate the model structs to and from its
// property graph.
type GraphDriver interface {
	// Node operations. GetNode returns ErrNodeNotFound for unknown ids.
	GetNode(ctx context.Context, nodeID, groupID string) (*types.Node, error)
	UpsertNode(ctx context.Context, node *types.Node) error
	DeleteNode(ctx context.Context, nodeID, groupID string) error
	GetNodes(ctx context.Context, nodeIDs []string, groupID string) ([]*types.Node, error)

	// Edge operations. GetEdge returns ErrEdgeNotFound for unknown ids.
	GetEdge(ctx context.Context, edgeID, groupID string) (*types.Edge, error)
	UpsertEdge(ctx context.Context, edge *types.Edge) error
	DeleteEdge(ctx context.Context, edgeID, groupID string) error
	GetEdges(ctx context.Context, edgeIDs []string, groupID string) ([]*types.Edge, error)

	// Graph traversal
	GetNeighbors(ctx context.Context, nodeID, groupID string, maxDistance int) ([]*types.Node, error)
	GetNeighborsWithDistance(ctx context.Context, nodeID, groupID string, maxDistance int) (map[string]int, error)
	GetEdgesByNode(ctx context.Context, nodeID, groupID string) ([]*types.Edge, error)

	// Search
	SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error)
	SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error)
	SearchEpisodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error)
	SearchNodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error)
	SearchEdges(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Edge, error)
	SearchEpisodes(ctx context.Context, query, groupID string, options *SearchOptions) ([]*types.Node, error)

	// Bulk writes, ordered so referenced nodes land before edges
	UpsertNodes(ctx context.Context, nodes []*types.Node) error
	UpsertEdges(ctx context.Context, edges []*types.Edge) error

	// Episode operations
	GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error)
	GetEdgesInTimeRange(ctx context.Context, start, end time.Time, groupID string) ([]*types.Edge, error)

	// Community operations
	GetCommunities(ctx context.Context, groupID string, level int) ([]*types.Node, error)

	// Maintenance
	CreateIndices(ctx context.Context) error
	DeleteAllIndexes(ctx context.Context) error
	ClearGroup(ctx context.Context, groupID string) error
	GetStats(ctx context.Context, groupID string) (*GraphStats, error)

	// ExecuteQuery runs a raw query, returning records as
	// []map[string]interface{}, the column header, and a driver summary.
	// Used by subsystems that need queries outside the CRUD surface
	// (centrality storage, migrations).
	ExecuteQuery(query string, params map[string]interface{}) (interface{}, interface{}, interface{}, error)

	Provider() GraphProvider
	Close(ctx context.Context) error
}

// GraphStats holds aggregate counts for one group.
type GraphStats struct {
	NodeCount      int64            `json:"node_count"`
	EdgeCount      int64            `json:"edge_count"`
	NodesByType    map[string]int64 `json:"nodes_by_type"`
	EdgesByType    map[string]int64 `json:"edges_by_type"`
	CommunityCount int64            `json:"community_count"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// SearchOptions holds options for fulltext search operations.
type SearchOptions struct {
	Limit     int              `json:"limit"`
	NodeTypes []types.NodeType `json:"node_types,omitempty"`
	EdgeTypes []types.EdgeType `json:"edge_types,omitempty"`
	TimeRange *types.TimeRange `json:"time_range,omitempty"`
}
