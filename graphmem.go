// Package graphmem builds and queries temporally-aware knowledge graphs
// for AI agents. Episodes of source data are distilled into entities and
// facts with bitemporal validity, retrievable through hybrid search.
package graphmem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundprediction/graphmem/pkg/community"
	"github.com/soundprediction/graphmem/pkg/crossencoder"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/embedder"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/prompts"
	"github.com/soundprediction/graphmem/pkg/search"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// GraphMem is the main interface for interacting with the temporal
// knowledge graph.
type GraphMem interface {
	// Add ingests episodes sequentially, returning per-episode results.
	Add(ctx context.Context, episodes []types.Episode) ([]*types.AddEpisodeResults, error)

	// AddEpisode ingests one episode through the extraction pipeline.
	AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error)

	// Search performs hybrid search combining semantic embeddings,
	// keyword matching and graph traversal.
	Search(ctx context.Context, query string, config *types.SearchConfig) (*types.SearchResults, error)

	// GetNode retrieves a specific node.
	GetNode(ctx context.Context, nodeID string) (*types.Node, error)

	// GetEdge retrieves a specific edge.
	GetEdge(ctx context.Context, edgeID string) (*types.Edge, error)

	// GetEpisodes retrieves the most recent episodes, oldest first.
	GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error)

	// RemoveEpisode deletes an episode and the edges derived only from it.
	RemoveEpisode(ctx context.Context, episodeID, groupID string) error

	// BuildCommunities clusters entities and writes community nodes.
	BuildCommunities(ctx context.Context, groupID string) ([]*types.Node, error)

	// ClearGroup removes all nodes and edges for a group.
	ClearGroup(ctx context.Context, groupID string) error

	// CreateIndices creates database indices and constraints.
	CreateIndices(ctx context.Context) error

	// GetStats returns aggregate counts for a group.
	GetStats(ctx context.Context, groupID string) (*driver.GraphStats, error)

	// Close releases all held resources.
	Close(ctx context.Context) error
}

// Config holds client configuration.
type Config struct {
	// GroupID isolates data for multi-tenant scenarios. Episodes without
	// a group inherit it.
	GroupID string
	// TimeZone for temporal operations.
	TimeZone *time.Location
	// SearchConfig is the default used when Search gets a nil config.
	SearchConfig *types.SearchConfig
	// EntityTypes optionally constrains extraction to a caller ontology,
	// name to description.
	EntityTypes map[string]string
	// EpisodeContextWindow is how many prior episodes feed extraction.
	EpisodeContextWindow int
	// MaxReflexionIterations bounds the missed-entity recovery loop.
	MaxReflexionIterations int
	// ResolveConcurrency bounds parallel candidate lookups during
	// entity resolution.
	ResolveConcurrency int
	// Logger for pipeline diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// Client implements GraphMem.
type Client struct {
	driver    driver.GraphDriver
	llm       llm.Client
	embedder  embedder.Client
	searcher  *search.Searcher
	prompts   prompts.Library
	community *community.Builder
	logger    *slog.Logger
	config    *Config
}

// NewClient creates a GraphMem client. The LLM client may be nil, which
// disables extraction; Add then only persists episode nodes.
func NewClient(d driver.GraphDriver, llmClient llm.Client, embedderClient embedder.Client, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.GroupID == "" {
		config.GroupID = "default"
	}
	if config.TimeZone == nil {
		config.TimeZone = time.UTC
	}
	if config.SearchConfig == nil {
		config.SearchConfig = NewDefaultSearchConfig()
	}
	if config.EpisodeContextWindow <= 0 {
		config.EpisodeContextWindow = utils.DefaultEpisodeContextWindow
	}
	if config.MaxReflexionIterations < 0 {
		config.MaxReflexionIterations = 0
	}
	if config.ResolveConcurrency <= 0 {
		config.ResolveConcurrency = utils.DefaultResolveConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var reranker crossencoder.Client
	if llmClient != nil {
		reranker = crossencoder.NewLLMReranker(llmClient, crossencoder.Config{})
	}

	return &Client{
		driver:    d,
		llm:       llmClient,
		embedder:  embedderClient,
		searcher:  search.NewSearcher(d, embedderClient, reranker, config.Logger),
		prompts:   prompts.DefaultLibrary,
		community: community.NewBuilder(d, llmClient, embedderClient, config.Logger),
		logger:    config.Logger,
		config:    config,
	}
}

// GetNode retrieves a specific node from the knowledge graph.
func (c *Client) GetNode(ctx context.Context, nodeID string) (*types.Node, error) {
	return c.driver.GetNode(ctx, nodeID, c.config.GroupID)
}

// GetEdge retrieves a specific edge from the knowledge graph.
func (c *Client) GetEdge(ctx context.Context, edgeID string) (*types.Edge, error) {
	return c.driver.GetEdge(ctx, edgeID, c.config.GroupID)
}

// GetEpisodes retrieves the lastN most recent episodes, oldest first.
func (c *Client) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error) {
	if groupID == "" {
		groupID = c.config.GroupID
	}
	return c.driver.GetEpisodes(ctx, groupID, lastN)
}

// RemoveEpisode deletes an episode node. Entity edges asserted only by
// this episode are deleted with it; shared edges just drop the episode
// from their provenance.
func (c *Client) RemoveEpisode(ctx context.Context, episodeID, groupID string) error {
	if groupID == "" {
		groupID = c.config.GroupID
	}
	episode, err := c.driver.GetNode(ctx, episodeID, groupID)
	if err != nil {
		return fmt.Errorf("failed to load episode %s: %w", episodeID, err)
	}

	for _, edgeID := range episode.EntityEdges {
		edge, err := c.driver.GetEdge(ctx, edgeID, groupID)
		if err != nil {
			continue
		}
		remaining := make([]string, 0, len(edge.Episodes))
		for _, id := range edge.Episodes {
			if id != episodeID {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			if err := c.driver.DeleteEdge(ctx, edgeID, groupID); err != nil {
				return fmt.Errorf("failed to delete edge %s: %w", edgeID, err)
			}
			continue
		}
		edge.Episodes = remaining
		edge.UpdatedAt = utils.UTCNow()
		if err := c.driver.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("failed to update edge %s: %w", edgeID, err)
		}
	}

	// MENTIONS edges go with the episode node itself.
	mentions, err := c.driver.GetEdgesByNode(ctx, episodeID, groupID)
	if err == nil {
		for _, edge := range mentions {
			if edge.Type == types.EpisodicEdgeType {
				_ = c.driver.DeleteEdge(ctx, edge.ID, groupID)
			}
		}
	}

	return c.driver.DeleteNode(ctx, episodeID, groupID)
}

// BuildCommunities detects entity clusters and writes community nodes
// with HAS_MEMBER edges and LLM summaries.
func (c *Client) BuildCommunities(ctx context.Context, groupID string) ([]*types.Node, error) {
	if groupID == "" {
		groupID = c.config.GroupID
	}
	return c.community.BuildCommunities(ctx, groupID)
}

// ClearGroup removes all nodes and edges for a group.
func (c *Client) ClearGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		groupID = c.config.GroupID
	}
	return c.driver.ClearGroup(ctx, groupID)
}

// CreateIndices creates database indices and constraints.
func (c *Client) CreateIndices(ctx context.Context) error {
	return c.driver.CreateIndices(ctx)
}

// GetStats returns aggregate counts for a group.
func (c *Client) GetStats(ctx context.Context, groupID string) (*driver.GraphStats, error) {
	if groupID == "" {
		groupID = c.config.GroupID
	}
	return c.driver.GetStats(ctx, groupID)
}

// Driver exposes the underlying graph driver for subsystems layered on
// the client (centrality, maintenance).
func (c *Client) Driver() driver.GraphDriver {
	return c.driver
}

// Close closes all connections and cleans up resources.
func (c *Client) Close(ctx context.Context) error {
	var firstErr error
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			firstErr = err
		}
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.driver.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
