package types

import (
	"time"
)

// NodeType discriminates the node structs stored in the graph.
type NodeType string

const (
	// EntityNodeType represents entities extracted from episode content.
	EntityNodeType NodeType = "entity"
	// EpisodicNodeType represents raw episodes of source data.
	EpisodicNodeType NodeType = "episodic"
	// CommunityNodeType represents clusters of related entities.
	CommunityNodeType NodeType = "community"
)

// EdgeType discriminates the relationship kinds stored in the graph.
type EdgeType string

const (
	// EntityEdgeType is a RELATES_TO fact between two entities.
	EntityEdgeType EdgeType = "RELATES_TO"
	// EpisodicEdgeType is a MENTIONS link from an episode to an entity.
	EpisodicEdgeType EdgeType = "MENTIONS"
	// CommunityEdgeType is a HAS_MEMBER link from a community to an entity.
	CommunityEdgeType EdgeType = "HAS_MEMBER"
)

// EpisodeSource identifies the kind of content an episode carries.
type EpisodeSource string

const (
	// MessageSource for conversational messages ("speaker: text").
	MessageSource EpisodeSource = "message"
	// TextSource for unstructured document text.
	TextSource EpisodeSource = "text"
	// JSONSource for structured payloads.
	JSONSource EpisodeSource = "json"
)

// Node is the single node representation for all graph node kinds,
// discriminated by Type. Entity, episodic and community specific fields
// are only populated for their respective kinds.
type Node struct {
	ID        string    `json:"uuid"`
	Name      string    `json:"name"`
	Type      NodeType  `json:"type"`
	GroupID   string    `json:"group_id"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Entity fields
	EntityType    string                 `json:"entity_type,omitempty"`
	Summary       string                 `json:"summary,omitempty"`
	NameEmbedding []float32              `json:"name_embedding,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`

	// Episodic fields
	Source            EpisodeSource `json:"source,omitempty"`
	SourceDescription string        `json:"source_description,omitempty"`
	Content           string        `json:"content,omitempty"`
	ContentEmbedding  []float32     `json:"content_embedding,omitempty"`
	// ValidAt is the reference time of the episode: when the events it
	// describes occurred, as opposed to when it was ingested.
	ValidAt time.Time `json:"valid_at,omitempty"`
	// EntityEdges lists the UUIDs of entity edges derived from this
	// episode, used for cascade removal.
	EntityEdges []string `json:"entity_edges,omitempty"`

	// Community fields
	Level   int      `json:"level,omitempty"`
	Members []string `json:"members,omitempty"`

	// Centrality scores keyed by metric name (pagerank, degree,
	// betweenness, importance), populated by the centrality engine.
	Centrality map[string]float64 `json:"centrality,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is the single relationship representation, discriminated by Type.
type Edge struct {
	ID        string    `json:"uuid"`
	Type      EdgeType  `json:"type"`
	GroupID   string    `json:"group_id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Name is the relation predicate in SCREAMING_SNAKE_CASE.
	Name string `json:"name,omitempty"`
	// Fact is the natural language statement this edge asserts.
	Fact          string    `json:"fact,omitempty"`
	FactEmbedding []float32 `json:"fact_embedding,omitempty"`
	// Episodes lists the episode UUIDs that asserted this fact.
	Episodes []string `json:"episodes,omitempty"`

	// Bitemporal validity. ValidAt is when the fact became true in the
	// world. InvalidAt is set when a later episode contradicts it.
	// ExpiredAt is set when the edge is collapsed into another by a
	// dedup sweep; it says nothing about the world.
	ValidAt   time.Time  `json:"valid_at,omitempty"`
	InvalidAt *time.Time `json:"invalid_at,omitempty"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsValidAt reports whether the fact held at t.
func (e *Edge) IsValidAt(t time.Time) bool {
	if e.ValidAt.After(t) {
		return false
	}
	return e.InvalidAt == nil || e.InvalidAt.After(t)
}

// Episode is the unit of ingestion handed to AddEpisode.
type Episode struct {
	ID                string                 `json:"uuid,omitempty"`
	Name              string                 `json:"name"`
	Content           string                 `json:"content"`
	Source            EpisodeSource          `json:"source"`
	SourceDescription string                 `json:"source_description,omitempty"`
	Reference         time.Time              `json:"reference"`
	CreatedAt         time.Time              `json:"created_at,omitempty"`
	GroupID           string                 `json:"group_id"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	// EntityTypes optionally constrains extraction to a caller-supplied
	// ontology, keyed by type name.
	EntityTypes map[string]interface{} `json:"-"`
}

// SearchConfig holds configuration for hybrid search operations.
type SearchConfig struct {
	// Limit is the maximum number of results to return.
	Limit int
	// CenterNodeID reranks results by graph distance from this node.
	CenterNodeID string
	// CenterNodeDistance bounds BFS traversal from center nodes.
	CenterNodeDistance int
	// MinScore drops results scoring below it after fusion.
	MinScore float64
	// IncludeEdges determines if edges are searched alongside nodes.
	IncludeEdges bool
	// IncludeEpisodes adds ranked episodes as a third result kind.
	IncludeEpisodes bool
	// IncludeInvalidated keeps edges with a set invalid_at in results;
	// the reranker demotes them.
	IncludeInvalidated bool
	// Rerank enables the reranking stage.
	Rerank bool
	// Filters constrain search results.
	Filters *SearchFilters
	// NodeConfig, EdgeConfig and EpisodeConfig select per-kind methods
	// and rerankers.
	NodeConfig    *NodeSearchConfig
	EdgeConfig    *EdgeSearchConfig
	EpisodeConfig *EpisodeSearchConfig
}

// NodeSearchConfig selects methods and reranker for node retrieval.
type NodeSearchConfig struct {
	SearchMethods []string
	Reranker      string
	MinScore      float64
}

// EdgeSearchConfig selects methods and reranker for edge retrieval.
type EdgeSearchConfig struct {
	SearchMethods []string
	Reranker      string
	MinScore      float64
}

// EpisodeSearchConfig selects methods and reranker for episode retrieval.
type EpisodeSearchConfig struct {
	SearchMethods []string
	Reranker      string
	MinScore      float64
}

// SearchFilters constrain search candidates before fusion.
type SearchFilters struct {
	GroupIDs    []string
	NodeTypes   []NodeType
	EdgeTypes   []EdgeType
	EntityTypes []string
	TimeRange   *TimeRange
}

// TimeRange filters edges by fact validity.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SearchResults holds the fused, reranked output of a search.
type SearchResults struct {
	Nodes         []*Node
	Edges         []*Edge
	Episodes      []*Node
	NodeScores    map[string]float64
	EdgeScores    map[string]float64
	EpisodeScores map[string]float64
	Query         string
	Total         int
}

// AddEpisodeResults is returned by episode ingestion. Errors carries the
// non-fatal degradations the pipeline accepted along the way.
type AddEpisodeResults struct {
	Episode       *Node
	Nodes         []*Node
	Edges         []*Edge
	EpisodicEdges []*Edge
	Errors        []error
}
