package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/centrality"
	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/relevance"
	"github.com/soundprediction/graphmem/pkg/types"
)

type fakeMemory struct {
	added    []types.Episode
	searched string
	results  *types.SearchResults
	episodes []*types.Node
	cleared  []string
}

func (f *fakeMemory) Add(ctx context.Context, episodes []types.Episode) ([]*types.AddEpisodeResults, error) {
	f.added = append(f.added, episodes...)
	out := make([]*types.AddEpisodeResults, len(episodes))
	for i := range episodes {
		out[i] = &types.AddEpisodeResults{Episode: &types.Node{
			ID:      episodes[i].ID,
			Type:    types.EpisodicNodeType,
			GroupID: episodes[i].GroupID,
			Content: episodes[i].Content,
		}}
	}
	return out, nil
}

func (f *fakeMemory) AddEpisode(ctx context.Context, episode types.Episode) (*types.AddEpisodeResults, error) {
	f.added = append(f.added, episode)
	return &types.AddEpisodeResults{Episode: &types.Node{
		ID:      episode.ID,
		Type:    types.EpisodicNodeType,
		GroupID: episode.GroupID,
		Content: episode.Content,
	}}, nil
}

func (f *fakeMemory) Search(ctx context.Context, query string, cfg *types.SearchConfig) (*types.SearchResults, error) {
	f.searched = query
	if f.results != nil {
		return f.results, nil
	}
	return &types.SearchResults{Query: query}, nil
}

func (f *fakeMemory) GetNode(ctx context.Context, id string) (*types.Node, error) {
	return &types.Node{ID: id, Name: "node " + id}, nil
}

func (f *fakeMemory) GetEdge(ctx context.Context, id string) (*types.Edge, error) {
	return nil, fmt.Errorf("edge %s not found", id)
}

func (f *fakeMemory) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]*types.Node, error) {
	return f.episodes, nil
}

func (f *fakeMemory) RemoveEpisode(ctx context.Context, episodeID, groupID string) error { return nil }

func (f *fakeMemory) BuildCommunities(ctx context.Context, groupID string) ([]*types.Node, error) {
	return nil, nil
}

func (f *fakeMemory) ClearGroup(ctx context.Context, groupID string) error {
	f.cleared = append(f.cleared, groupID)
	return nil
}

func (f *fakeMemory) CreateIndices(ctx context.Context) error { return nil }

func (f *fakeMemory) GetStats(ctx context.Context, groupID string) (*driver.GraphStats, error) {
	return &driver.GraphStats{}, nil
}

func (f *fakeMemory) Close(ctx context.Context) error { return nil }

func newTestServer(memory *fakeMemory) *Server {
	srv := New(&config.ServerConfig{Host: "localhost", Port: 0, Mode: "test"}, Dependencies{
		Memory:    memory,
		Relevance: relevance.NewTracker(),
		Scorer:    relevance.HeuristicScorer{},
	})
	srv.Setup()
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthcheck(t *testing.T) {
	srv := newTestServer(&fakeMemory{})
	w := doJSON(t, srv.Handler(), http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestIngestMessagesSynchronous(t *testing.T) {
	memory := &fakeMemory{}
	srv := newTestServer(memory)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/ingest/messages", map[string]interface{}{
		"group_id": "g1",
		"messages": []map[string]string{
			{"role": "user", "content": "Alice moved to Paris."},
			{"role": "assistant", "content": "Noted."},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, memory.added, 2)
	assert.Equal(t, "user: Alice moved to Paris.", memory.added[0].Content)
	assert.Equal(t, types.MessageSource, memory.added[0].Source)
	assert.Equal(t, "g1", memory.added[0].GroupID)
}

func TestIngestMessagesRejectsBadGroup(t *testing.T) {
	srv := newTestServer(&fakeMemory{})
	w := doJSON(t, srv.Handler(), http.MethodPost, "/ingest/messages", map[string]interface{}{
		"group_id": "bad group!",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchReturnsFacts(t *testing.T) {
	validAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	memory := &fakeMemory{
		results: &types.SearchResults{
			Nodes: []*types.Node{{ID: "n1", Name: "Alice", EntityType: "Person"}},
			Edges: []*types.Edge{{
				ID: "e1", Name: "LIVES_IN", Fact: "Alice lives in Paris",
				SourceID: "n1", TargetID: "n2", ValidAt: validAt,
			}},
			NodeScores: map[string]float64{"n1": 0.9},
			EdgeScores: map[string]float64{"e1": 0.8},
			Total:      2,
		},
	}
	srv := newTestServer(memory)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]interface{}{
		"query":     "where does alice live",
		"group_ids": []string{"g1"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Facts []struct {
			UUID       string  `json:"uuid"`
			Fact       string  `json:"fact"`
			SourceName string  `json:"source_name"`
			Score      float64 `json:"score"`
		} `json:"facts"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "Alice lives in Paris", resp.Facts[0].Fact)
	assert.Equal(t, "Alice", resp.Facts[0].SourceName)
	assert.Equal(t, 0.8, resp.Facts[0].Score)
	assert.Equal(t, "where does alice live", memory.searched)
}

func TestGetMemoryJoinsMessages(t *testing.T) {
	memory := &fakeMemory{}
	srv := newTestServer(memory)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/get-memory", map[string]interface{}{
		"group_id": "g1",
		"messages": []map[string]string{
			{"role": "user", "content": "tell me about alice"},
			{"role": "user", "content": "and her city"},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tell me about alice\nand her city", memory.searched)
}

func TestGetEpisodes(t *testing.T) {
	memory := &fakeMemory{episodes: []*types.Node{
		{ID: "ep1", GroupID: "g1", Content: "hello", Type: types.EpisodicNodeType},
	}}
	srv := newTestServer(memory)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/episodes/g1?last_n=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ep1")

	w = doJSON(t, srv.Handler(), http.MethodGet, "/episodes/g1?last_n=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearData(t *testing.T) {
	memory := &fakeMemory{}
	srv := newTestServer(memory)

	w := doJSON(t, srv.Handler(), http.MethodDelete, "/ingest/clear", map[string]interface{}{
		"group_ids": []string{"g1", "g2"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"g1", "g2"}, memory.cleared)
}

func TestRelevanceFeedback(t *testing.T) {
	srv := newTestServer(&fakeMemory{})

	w := doJSON(t, srv.Handler(), http.MethodPost, "/relevance/feedback", map[string]interface{}{
		"memory_id": "m1",
		"score":     0.9,
		"query_id":  "q-42",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Score          float64 `json:"score"`
		UsageCount     int     `json:"usage_count"`
		SuccessfulUses int     `json:"successful_uses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.9, resp.Score)
	assert.Equal(t, 1, resp.UsageCount)
	assert.Equal(t, 1, resp.SuccessfulUses)

	w = doJSON(t, srv.Handler(), http.MethodGet, "/relevance/m1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var record struct {
		Observations []struct {
			Score   float64 `json:"score"`
			QueryID string  `json:"query_id"`
			Method  string  `json:"method"`
		} `json:"observations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	require.Len(t, record.Observations, 1)
	assert.Equal(t, 0.9, record.Observations[0].Score)
	assert.Equal(t, "q-42", record.Observations[0].QueryID)
	assert.Equal(t, "manual", record.Observations[0].Method)

	w = doJSON(t, srv.Handler(), http.MethodGet, "/relevance/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCentralityRejectsUnknownSchema(t *testing.T) {
	srv := New(&config.ServerConfig{Host: "localhost", Port: 0, Mode: "test"}, Dependencies{
		Memory:     &fakeMemory{},
		Centrality: centrality.NewEngine(nil, centrality.DefaultWeights, nil),
	})
	srv.Setup()

	req := httptest.NewRequest(http.MethodPost, "/centrality/calculate",
		bytes.NewReader([]byte(`{"group_id":"g1"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.centrality.v9+json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestRelevanceFeedbackScoredServerSide(t *testing.T) {
	srv := newTestServer(&fakeMemory{})

	w := doJSON(t, srv.Handler(), http.MethodPost, "/relevance/feedback", map[string]interface{}{
		"memory_id": "m2",
		"query":     "alice lives paris",
		"memory":    "alice lives paris",
		"response":  "",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 0.7, resp.Score, 1e-9)

	// Server-side scores are labeled with the scorer's method.
	record := srv.deps.Relevance.Get("m2")
	require.NotNil(t, record)
	require.Len(t, record.Observations, 1)
	assert.Equal(t, relevance.MethodHeuristic, record.Observations[0].Method)
}
