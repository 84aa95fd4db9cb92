package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/types"
)

// stubDriver satisfies driver.GraphDriver with scripted search results.
type stubDriver struct {
	driver.GraphDriver

	vectorNodes      []*types.Node
	fulltextNodes    []*types.Node
	vectorEdges      []*types.Edge
	fulltextEdges    []*types.Edge
	vectorEpisodes   []*types.Node
	fulltextEpisodes []*types.Node
	distances        map[string]int
	nodesByID        map[string]*types.Node
}

func (s *stubDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	return s.vectorNodes, nil
}

func (s *stubDriver) SearchNodes(ctx context.Context, query, groupID string, options *driver.SearchOptions) ([]*types.Node, error) {
	return s.fulltextNodes, nil
}

func (s *stubDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	return s.vectorEdges, nil
}

func (s *stubDriver) SearchEdges(ctx context.Context, query, groupID string, options *driver.SearchOptions) ([]*types.Edge, error) {
	return s.fulltextEdges, nil
}

func (s *stubDriver) SearchEpisodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	return s.vectorEpisodes, nil
}

func (s *stubDriver) SearchEpisodes(ctx context.Context, query, groupID string, options *driver.SearchOptions) ([]*types.Node, error) {
	return s.fulltextEpisodes, nil
}

func (s *stubDriver) GetNeighborsWithDistance(ctx context.Context, nodeID, groupID string, maxDistance int) (map[string]int, error) {
	return s.distances, nil
}

func (s *stubDriver) GetNodes(ctx context.Context, nodeIDs []string, groupID string) ([]*types.Node, error) {
	var out []*types.Node
	for _, id := range nodeIDs {
		if n, ok := s.nodesByID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Close() error    { return nil }

func entityNode(id, name string) *types.Node {
	return &types.Node{ID: id, Name: name, Type: types.EntityNodeType, GroupID: "g"}
}

func factEdge(id, fact string) *types.Edge {
	return &types.Edge{
		ID:      id,
		Type:    types.EntityEdgeType,
		GroupID: "g",
		Fact:    fact,
		ValidAt: time.Now().UTC(),
	}
}

func TestSearchFusesNodeRankings(t *testing.T) {
	d := &stubDriver{
		vectorNodes:   []*types.Node{entityNode("a", "Alice"), entityNode("b", "Bob")},
		fulltextNodes: []*types.Node{entityNode("b", "Bob"), entityNode("c", "Carol")},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	result, err := searcher.Search(context.Background(), "who is bob", "g", CombinedHybridSearchRRF())
	require.NoError(t, err)

	require.NotEmpty(t, result.Nodes)
	assert.Equal(t, "b", result.Nodes[0].ID)
	assert.Len(t, result.Nodes, 3)
	assert.Greater(t, result.NodeScores["b"], result.NodeScores["a"])
}

func TestSearchDropsInvalidatedEdgesByDefault(t *testing.T) {
	invalidAt := time.Now().UTC()
	stale := factEdge("old", "Bob lives in London")
	stale.InvalidAt = &invalidAt

	d := &stubDriver{
		vectorEdges:   []*types.Edge{stale, factEdge("new", "Bob lives in Paris")},
		fulltextEdges: []*types.Edge{stale},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	result, err := searcher.Search(context.Background(), "where does bob live", "g", CombinedHybridSearchRRF())
	require.NoError(t, err)

	require.Len(t, result.Edges, 1)
	assert.Equal(t, "new", result.Edges[0].ID)
}

func TestSearchDemotesInvalidatedEdgesWhenIncluded(t *testing.T) {
	invalidAt := time.Now().UTC()
	stale := factEdge("old", "Bob lives in London")
	stale.InvalidAt = &invalidAt

	// The stale fact ranks first in both lists, so without demotion it
	// would win the fusion.
	d := &stubDriver{
		vectorEdges:   []*types.Edge{stale, factEdge("new", "Bob lives in Paris")},
		fulltextEdges: []*types.Edge{stale, factEdge("new", "Bob lives in Paris")},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := CombinedHybridSearchRRF()
	config.IncludeInvalidated = true
	result, err := searcher.Search(context.Background(), "where does bob live", "g", config)
	require.NoError(t, err)

	require.Len(t, result.Edges, 2)
	assert.Equal(t, "new", result.Edges[0].ID)
	assert.Equal(t, "old", result.Edges[1].ID)
}

func TestSearchNodeDistanceRerank(t *testing.T) {
	d := &stubDriver{
		vectorNodes:   []*types.Node{entityNode("far", "Far"), entityNode("near", "Near")},
		fulltextNodes: []*types.Node{entityNode("far", "Far")},
		distances:     map[string]int{"near": 1, "far": 3},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := NodeHybridSearchNodeDistance()
	config.CenterNodeID = "center"
	result, err := searcher.Search(context.Background(), "anything", "g", config)
	require.NoError(t, err)

	require.Len(t, result.Nodes, 2)
	assert.Equal(t, "near", result.Nodes[0].ID)
	assert.InDelta(t, 0.5, result.NodeScores["near"], 1e-9)
	assert.InDelta(t, 0.25, result.NodeScores["far"], 1e-9)
}

func TestSearchTraversalOnly(t *testing.T) {
	d := &stubDriver{
		distances: map[string]int{"n1": 1, "n2": 2},
		nodesByID: map[string]*types.Node{
			"n1": entityNode("n1", "One"),
			"n2": entityNode("n2", "Two"),
		},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := NodeTraversalSearch()
	config.CenterNodeID = "center"
	result, err := searcher.Search(context.Background(), "", "g", config)
	require.NoError(t, err)

	require.Len(t, result.Nodes, 2)
	assert.Equal(t, "n1", result.Nodes[0].ID)
}

func TestSearchEpisodeMentionsRerank(t *testing.T) {
	once := factEdge("once", "mentioned once")
	once.Episodes = []string{"e1"}
	often := factEdge("often", "mentioned often")
	often.Episodes = []string{"e1", "e2", "e3"}

	d := &stubDriver{
		vectorEdges:   []*types.Edge{once, often},
		fulltextEdges: []*types.Edge{once},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	result, err := searcher.Search(context.Background(), "mentions", "g", EdgeHybridSearchEpisodeMentions())
	require.NoError(t, err)

	require.Len(t, result.Edges, 2)
	assert.Equal(t, "often", result.Edges[0].ID)
	assert.Equal(t, 1.0, result.EdgeScores["often"])
}

func episodeNode(id, content string) *types.Node {
	return &types.Node{
		ID:               id,
		Name:             id,
		Type:             types.EpisodicNodeType,
		GroupID:          "g",
		Content:          content,
		ContentEmbedding: []float32{1, 0},
	}
}

func TestSearchFusesEpisodeRankings(t *testing.T) {
	d := &stubDriver{
		vectorEpisodes:   []*types.Node{episodeNode("e1", "Alice moved to Paris"), episodeNode("e2", "Bob called")},
		fulltextEpisodes: []*types.Node{episodeNode("e2", "Bob called"), episodeNode("e3", "standup notes")},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	result, err := searcher.Search(context.Background(), "what did bob do", "g", EpisodeHybridSearch())
	require.NoError(t, err)

	require.Len(t, result.Episodes, 3)
	assert.Equal(t, "e2", result.Episodes[0].ID)
	assert.Greater(t, result.EpisodeScores["e2"], result.EpisodeScores["e1"])
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Edges)
}

func TestSearchReturnsAllThreeKinds(t *testing.T) {
	d := &stubDriver{
		vectorNodes:      []*types.Node{entityNode("a", "Alice")},
		fulltextNodes:    []*types.Node{entityNode("a", "Alice")},
		vectorEdges:      []*types.Edge{factEdge("f1", "Alice lives in Paris")},
		fulltextEdges:    []*types.Edge{factEdge("f1", "Alice lives in Paris")},
		vectorEpisodes:   []*types.Node{episodeNode("e1", "Alice moved to Paris")},
		fulltextEpisodes: []*types.Node{episodeNode("e1", "Alice moved to Paris")},
	}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := CombinedHybridSearchRRF()
	config.EpisodeConfig = &EpisodeConfig{
		SearchMethods: []SearchMethod{CosineSimilarity, BM25},
		Reranker:      RRFRerankType,
	}
	result, err := searcher.Search(context.Background(), "alice", "g", config)
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 1)
	assert.Len(t, result.Edges, 1)
	assert.Len(t, result.Episodes, 1)
	assert.Contains(t, result.EpisodeScores, "e1")
}

// slowDriver tracks how many retriever calls overlap in time.
type slowDriver struct {
	stubDriver

	mu        sync.Mutex
	active    int
	maxActive int
}

func (s *slowDriver) track() func() {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	return func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}
}

func (s *slowDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	defer s.track()()
	return s.vectorNodes, nil
}

func (s *slowDriver) SearchEdgesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Edge, error) {
	defer s.track()()
	return s.vectorEdges, nil
}

func (s *slowDriver) SearchEpisodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	defer s.track()()
	return s.vectorEpisodes, nil
}

func TestSearchRunsRetrieverKindsInParallel(t *testing.T) {
	d := &slowDriver{stubDriver: stubDriver{
		vectorNodes:    []*types.Node{entityNode("a", "Alice")},
		vectorEdges:    []*types.Edge{factEdge("f1", "Alice lives in Paris")},
		vectorEpisodes: []*types.Node{episodeNode("e1", "Alice moved to Paris")},
	}}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := &Config{
		Limit: 10,
		RRFK:  DefaultRRFK,
		NodeConfig: &NodeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity},
			Reranker:      RRFRerankType,
		},
		EdgeConfig: &EdgeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity},
			Reranker:      RRFRerankType,
		},
		EpisodeConfig: &EpisodeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity},
			Reranker:      RRFRerankType,
		},
	}
	result, err := searcher.Search(context.Background(), "alice", "g", config)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 1)

	assert.GreaterOrEqual(t, d.maxActive, 2)
}

func TestSearchEmptyResultIsNotError(t *testing.T) {
	searcher := NewSearcher(&stubDriver{}, stubEmbedder{}, nil, nil)
	result, err := searcher.Search(context.Background(), "nothing matches", "g", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Edges)
}

func TestSearchLimitTruncates(t *testing.T) {
	var nodes []*types.Node
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		nodes = append(nodes, entityNode(id, id))
	}
	d := &stubDriver{vectorNodes: nodes, fulltextNodes: nodes}
	searcher := NewSearcher(d, stubEmbedder{}, nil, nil)

	config := CombinedHybridSearchRRF()
	config.Limit = 2
	result, err := searcher.Search(context.Background(), "q", "g", config)
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 2)
}
