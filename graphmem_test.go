package graphmem

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/llm"
	"github.com/soundprediction/graphmem/pkg/types"
)

// memDriver is an in-memory driver.GraphDriver covering the pipeline's
// needs. Unimplemented methods come from the embedded nil interface.
type memDriver struct {
	driver.GraphDriver

	nodes map[string]*types.Node
	edges map[string]*types.Edge
}

func newMemDriver() *memDriver {
	return &memDriver{
		nodes: make(map[string]*types.Node),
		edges: make(map[string]*types.Edge),
	}
}

func (m *memDriver) GetNode(ctx context.Context, nodeID, groupID string) (*types.Node, error) {
	if n, ok := m.nodes[nodeID]; ok {
		return n, nil
	}
	return nil, driver.ErrNodeNotFound
}

func (m *memDriver) UpsertNode(ctx context.Context, node *types.Node) error {
	m.nodes[node.ID] = node
	return nil
}

func (m *memDriver) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return nil
}

func (m *memDriver) DeleteNode(ctx context.Context, nodeID, groupID string) error {
	delete(m.nodes, nodeID)
	return nil
}

func (m *memDriver) GetEdge(ctx context.Context, edgeID, groupID string) (*types.Edge, error) {
	if e, ok := m.edges[edgeID]; ok {
		return e, nil
	}
	return nil, driver.ErrEdgeNotFound
}

func (m *memDriver) UpsertEdge(ctx context.Context, edge *types.Edge) error {
	m.edges[edge.ID] = edge
	return nil
}

func (m *memDriver) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	for _, e := range edges {
		m.edges[e.ID] = e
	}
	return nil
}

func (m *memDriver) DeleteEdge(ctx context.Context, edgeID, groupID string) error {
	delete(m.edges, edgeID)
	return nil
}

func (m *memDriver) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error) {
	var out []*types.Node
	for _, n := range m.nodes {
		if n.Type == types.EpisodicNodeType && n.GroupID == groupID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memDriver) SearchNodesByEmbedding(ctx context.Context, embedding []float32, groupID string, limit int) ([]*types.Node, error) {
	return m.entityNodes(groupID), nil
}

func (m *memDriver) SearchNodes(ctx context.Context, query, groupID string, options *driver.SearchOptions) ([]*types.Node, error) {
	return m.entityNodes(groupID), nil
}

func (m *memDriver) GetEdgesByNode(ctx context.Context, nodeID, groupID string) ([]*types.Edge, error) {
	var out []*types.Edge
	for _, e := range m.edges {
		if e.SourceID == nodeID || e.TargetID == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memDriver) entityNodes(groupID string) []*types.Node {
	var out []*types.Node
	for _, n := range m.nodes {
		if n.Type == types.EntityNodeType && n.GroupID == groupID {
			out = append(out, n)
		}
	}
	return out
}

// scriptedLLM answers structured calls by schema shape.
type scriptedLLM struct {
	entities     string
	edges        string
	resolutions  string
	edgeResolve  string
	invalidated  string
	failAll      bool
	structCalls  int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	return &llm.Response{Content: "{}"}, nil
}

func (s *scriptedLLM) ChatWithStructuredOutput(ctx context.Context, messages []llm.Message, schema map[string]interface{}, size llm.ModelSize) (json.RawMessage, error) {
	s.structCalls++
	if s.failAll {
		return nil, errors.New("llm unavailable")
	}
	props, _ := schema["properties"].(map[string]interface{})
	switch {
	case props["entities"] != nil:
		return json.RawMessage(s.entities), nil
	case props["edges"] != nil:
		return json.RawMessage(s.edges), nil
	case props["entity_resolutions"] != nil:
		return json.RawMessage(s.resolutions), nil
	case props["duplicate_facts"] != nil:
		return json.RawMessage(s.edgeResolve), nil
	case props["invalidated_edges"] != nil:
		return json.RawMessage(s.invalidated), nil
	case props["missed_entities"] != nil:
		return json.RawMessage(`{"missed_entities": []}`), nil
	}
	return json.RawMessage("{}"), nil
}

func (s *scriptedLLM) Close() error { return nil }

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fixedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }
func (fixedEmbedder) Close() error    { return nil }

func movedToParisLLM() *scriptedLLM {
	return &scriptedLLM{
		entities: `{"entities": [
			{"name": "Alice", "entity_type_id": 0},
			{"name": "Paris", "entity_type_id": 0}
		]}`,
		edges: `{"edges": [
			{"relation_type": "LIVES_IN", "source_entity_id": 0, "target_entity_id": 1,
			 "fact": "Alice lives in Paris", "valid_at": "2024-06-01T00:00:00Z"}
		]}`,
		resolutions: `{"entity_resolutions": []}`,
		edgeResolve: `{"duplicate_facts": [], "contradicted_facts": [], "fact_type": "LOCATION"}`,
		invalidated: `{"invalidated_edges": []}`,
	}
}

func testEpisode(content string) types.Episode {
	return types.Episode{
		Name:      "conversation-1",
		Content:   content,
		Source:    types.MessageSource,
		Reference: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		GroupID:   "test-group",
	}
}

func TestAddEpisodeExtractsEntitiesAndFacts(t *testing.T) {
	d := newMemDriver()
	client := NewClient(d, movedToParisLLM(), fixedEmbedder{}, nil)

	result, err := client.AddEpisode(context.Background(), testEpisode("alice: I moved to Paris"))
	require.NoError(t, err)

	require.NotNil(t, result.Episode)
	assert.Equal(t, types.EpisodicNodeType, result.Episode.Type)
	assert.Len(t, result.Nodes, 2)
	assert.Len(t, result.EpisodicEdges, 2)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, "LIVES_IN", result.Edges[0].Name)
	assert.Equal(t, types.EntityEdgeType, result.Edges[0].Type)
	assert.Empty(t, result.Errors)

	// Episode provenance points at the created fact.
	assert.Contains(t, result.Episode.EntityEdges, result.Edges[0].ID)

	stored, err := d.GetEdge(context.Background(), result.Edges[0].ID, "test-group")
	require.NoError(t, err)
	assert.Equal(t, []string{result.Episode.ID}, stored.Episodes)
	assert.Equal(t, 2024, stored.ValidAt.Year())
}

func TestAddEpisodeDegradesWhenLLMFails(t *testing.T) {
	d := newMemDriver()
	client := NewClient(d, &scriptedLLM{failAll: true}, fixedEmbedder{}, nil)

	result, err := client.AddEpisode(context.Background(), testEpisode("hello"))
	require.NoError(t, err)

	assert.NotNil(t, result.Episode)
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Edges)
	assert.NotEmpty(t, result.Errors)

	// The episode node itself survives.
	_, err = d.GetNode(context.Background(), result.Episode.ID, "test-group")
	assert.NoError(t, err)
}

func TestAddEpisodeResolvesExactNameMatch(t *testing.T) {
	d := newMemDriver()
	d.nodes["alice-1"] = &types.Node{
		ID: "alice-1", Name: "Alice", Type: types.EntityNodeType, GroupID: "test-group",
	}
	d.nodes["paris-1"] = &types.Node{
		ID: "paris-1", Name: "Paris", Type: types.EntityNodeType, GroupID: "test-group",
	}

	client := NewClient(d, movedToParisLLM(), fixedEmbedder{}, nil)
	result, err := client.AddEpisode(context.Background(), testEpisode("alice: I moved to Paris"))
	require.NoError(t, err)

	require.Len(t, result.Nodes, 2)
	ids := []string{result.Nodes[0].ID, result.Nodes[1].ID}
	assert.Contains(t, ids, "alice-1")
	assert.Contains(t, ids, "paris-1")
	assert.Len(t, d.entityNodes("test-group"), 2)
}

func TestAddEpisodeInvalidatesSupersededFact(t *testing.T) {
	d := newMemDriver()
	d.nodes["alice-1"] = &types.Node{
		ID: "alice-1", Name: "Alice", Type: types.EntityNodeType, GroupID: "test-group",
	}
	d.nodes["paris-1"] = &types.Node{
		ID: "paris-1", Name: "Paris", Type: types.EntityNodeType, GroupID: "test-group",
	}
	d.edges["visit-1"] = &types.Edge{
		ID: "visit-1", Type: types.EntityEdgeType, GroupID: "test-group",
		SourceID: "alice-1", TargetID: "paris-1",
		Name: "VISITING", Fact: "Alice is visiting Paris",
		ValidAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	script := movedToParisLLM()
	script.edgeResolve = `{"duplicate_facts": [], "contradicted_facts": [0], "fact_type": "LOCATION"}`
	script.invalidated = `{"invalidated_edges": [0]}`

	client := NewClient(d, script, fixedEmbedder{}, nil)
	result, err := client.AddEpisode(context.Background(), testEpisode("alice: I moved to Paris for good"))
	require.NoError(t, err)

	require.Len(t, result.Edges, 1)
	old := d.edges["visit-1"]
	require.NotNil(t, old.InvalidAt)
	assert.Equal(t, result.Edges[0].ValidAt, *old.InvalidAt)
}

func TestAddEpisodeMergesDuplicateFact(t *testing.T) {
	d := newMemDriver()
	d.nodes["alice-1"] = &types.Node{
		ID: "alice-1", Name: "Alice", Type: types.EntityNodeType, GroupID: "test-group",
	}
	d.nodes["paris-1"] = &types.Node{
		ID: "paris-1", Name: "Paris", Type: types.EntityNodeType, GroupID: "test-group",
	}
	d.edges["lives-1"] = &types.Edge{
		ID: "lives-1", Type: types.EntityEdgeType, GroupID: "test-group",
		SourceID: "alice-1", TargetID: "paris-1",
		Name: "LIVES_IN", Fact: "Alice lives in Paris",
		Episodes: []string{"earlier-episode"},
		ValidAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	script := movedToParisLLM()
	script.edgeResolve = `{"duplicate_facts": [0], "contradicted_facts": [], "fact_type": "LOCATION"}`

	client := NewClient(d, script, fixedEmbedder{}, nil)
	result, err := client.AddEpisode(context.Background(), testEpisode("alice: still living in Paris"))
	require.NoError(t, err)

	// No new edge created; provenance merged into the survivor.
	assert.Empty(t, result.Edges)
	assert.Len(t, d.edges["lives-1"].Episodes, 2)
	assert.Contains(t, d.edges["lives-1"].Episodes, result.Episode.ID)
}

func TestAddEpisodeTwiceKeepsSingleMentionPerEntity(t *testing.T) {
	d := newMemDriver()
	client := NewClient(d, movedToParisLLM(), fixedEmbedder{}, nil)

	episode := testEpisode("alice: I moved to Paris")
	episode.ID = "ep-repeat"

	_, err := client.AddEpisode(context.Background(), episode)
	require.NoError(t, err)
	_, err = client.AddEpisode(context.Background(), episode)
	require.NoError(t, err)

	mentions := 0
	for _, e := range d.edges {
		if e.Type == types.EpisodicEdgeType {
			mentions++
		}
	}
	assert.Equal(t, 2, mentions)
	assert.Len(t, d.entityNodes("test-group"), 2)
}

func TestRemoveEpisodeUnknownID(t *testing.T) {
	client := NewClient(newMemDriver(), nil, nil, &Config{GroupID: "g"})
	err := client.RemoveEpisode(context.Background(), "no-such-episode", "g")
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrNodeNotFound)
}

func TestRemoveEpisodeCascades(t *testing.T) {
	d := newMemDriver()
	d.nodes["ep-1"] = &types.Node{
		ID: "ep-1", Type: types.EpisodicNodeType, GroupID: "g",
		EntityEdges: []string{"sole", "shared"},
	}
	d.edges["sole"] = &types.Edge{
		ID: "sole", Type: types.EntityEdgeType, GroupID: "g",
		SourceID: "a", TargetID: "b", Episodes: []string{"ep-1"},
	}
	d.edges["shared"] = &types.Edge{
		ID: "shared", Type: types.EntityEdgeType, GroupID: "g",
		SourceID: "a", TargetID: "c", Episodes: []string{"ep-1", "ep-2"},
	}
	d.edges["mention"] = &types.Edge{
		ID: "mention", Type: types.EpisodicEdgeType, GroupID: "g",
		SourceID: "ep-1", TargetID: "a",
	}

	client := NewClient(d, nil, nil, &Config{GroupID: "g"})
	require.NoError(t, client.RemoveEpisode(context.Background(), "ep-1", "g"))

	_, err := d.GetNode(context.Background(), "ep-1", "g")
	assert.Error(t, err)
	_, err = d.GetEdge(context.Background(), "sole", "g")
	assert.Error(t, err)
	_, err = d.GetEdge(context.Background(), "mention", "g")
	assert.Error(t, err)

	shared, err := d.GetEdge(context.Background(), "shared", "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"ep-2"}, shared.Episodes)
}

func TestAddEpisodeRejectsBadGroupID(t *testing.T) {
	client := NewClient(newMemDriver(), nil, nil, nil)
	episode := testEpisode("hello")
	episode.GroupID = "bad group id!"
	_, err := client.AddEpisode(context.Background(), episode)
	assert.Error(t, err)
}

func TestAddWithoutLLMOnlyPersistsEpisodes(t *testing.T) {
	d := newMemDriver()
	client := NewClient(d, nil, nil, nil)

	results, err := client.Add(context.Background(), []types.Episode{
		testEpisode("one"),
		testEpisode("two"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotNil(t, r.Episode)
		assert.Empty(t, r.Nodes)
	}
}
