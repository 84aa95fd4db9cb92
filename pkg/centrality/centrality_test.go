package centrality

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/driver"
)

func starGraph() map[string][]string {
	// hub points at four spokes
	return map[string][]string{
		"hub": {"s1", "s2", "s3", "s4"},
		"s1":  nil,
		"s2":  nil,
		"s3":  nil,
		"s4":  nil,
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	g := buildGraph(starGraph())
	ranks := pageRank(g)

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestPageRankFavorsLinkedNodes(t *testing.T) {
	// everything links to "popular"
	g := buildGraph(map[string][]string{
		"a":       {"popular"},
		"b":       {"popular"},
		"c":       {"popular"},
		"popular": nil,
	})
	ranks := pageRank(g)
	for _, id := range []string{"a", "b", "c"} {
		assert.Greater(t, ranks["popular"], ranks[id])
	}
}

func TestDegreeDirections(t *testing.T) {
	g := buildGraph(map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
	})

	both := degree(g, DegreeBoth)
	assert.Equal(t, 2.0, both["a"])
	assert.Equal(t, 2.0, both["c"])

	in := degree(g, DegreeIn)
	assert.Equal(t, 0.0, in["a"])
	assert.Equal(t, 2.0, in["c"])

	out := degree(g, DegreeOut)
	assert.Equal(t, 2.0, out["a"])
	assert.Equal(t, 0.0, out["c"])
}

func TestBetweennessBridge(t *testing.T) {
	// a-b-c path: b carries all shortest paths between a and c.
	g := buildGraph(map[string][]string{
		"a": {"bridge"},
		"bridge": {"c"},
		"c": nil,
	})
	scores := betweenness(g)

	assert.Greater(t, scores["bridge"], scores["a"])
	assert.Equal(t, 0.0, scores["a"])
	assert.Equal(t, 0.0, scores["c"])
}

func TestBetweennessTinyGraphIsZero(t *testing.T) {
	g := buildGraph(map[string][]string{"a": {"b"}, "b": nil})
	scores := betweenness(g)
	assert.Equal(t, 0.0, scores["a"])
	assert.Equal(t, 0.0, scores["b"])
}

func TestValidateMetricsRejectsBadScores(t *testing.T) {
	good := &Metrics{
		PageRank:    map[string]float64{"a": 0.5},
		Degree:      map[string]float64{"a": 2},
		Betweenness: map[string]float64{"a": 0},
		Importance:  map[string]float64{"a": 1},
	}
	assert.NoError(t, validateMetrics(good))

	bad := &Metrics{
		PageRank:    map[string]float64{"a": -0.5},
		Degree:      map[string]float64{"a": 2},
		Betweenness: map[string]float64{"a": 0},
	}
	assert.Error(t, validateMetrics(bad))

	missing := &Metrics{
		PageRank:    map[string]float64{"a": 0.5},
		Degree:      map[string]float64{},
		Betweenness: map[string]float64{},
	}
	assert.Error(t, validateMetrics(missing))
}

func TestValidateMetricsRejectsOutOfRangeScores(t *testing.T) {
	overPagerank := &Metrics{
		PageRank:    map[string]float64{"n1": 1.5},
		Degree:      map[string]float64{"n1": 2},
		Betweenness: map[string]float64{"n1": 0},
	}
	assert.Error(t, validateMetrics(overPagerank))

	overBetweenness := &Metrics{
		PageRank:    map[string]float64{"n1": 0.5},
		Degree:      map[string]float64{"n1": 2},
		Betweenness: map[string]float64{"n1": 1.2},
	}
	assert.Error(t, validateMetrics(overBetweenness))

	// Raw degree counts exceed 1 on any graph with two edges.
	highDegree := &Metrics{
		PageRank:    map[string]float64{"n1": 0.5},
		Degree:      map[string]float64{"n1": 40},
		Betweenness: map[string]float64{"n1": 1},
	}
	assert.NoError(t, validateMetrics(highDegree))
}

func TestParseVersionAndCompatibility(t *testing.T) {
	v, err := ParseVersion("2.2.0")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion{Major: 2, Minor: 2}, v)

	_, err = ParseVersion("2.2")
	assert.Error(t, err)

	assert.True(t, SchemaLatest.Compatible(SchemaV2))
	assert.False(t, SchemaLatest.Compatible(SchemaV1))
}

func TestNegotiateVersion(t *testing.T) {
	v, err := NegotiateVersion("application/vnd.centrality.v2+json")
	require.NoError(t, err)
	assert.Equal(t, SchemaLatest, v)

	// v1 resolves to the newest minor in that major.
	v, err = NegotiateVersion("application/vnd.centrality.v1+json")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion{Major: 1, Minor: 2}, v)

	v, err = NegotiateVersion("")
	require.NoError(t, err)
	assert.Equal(t, SchemaLatest, v)

	_, err = NegotiateVersion("application/vnd.centrality.v9+json")
	assert.Error(t, err)

	_, err = NegotiateVersion("text/html")
	assert.Error(t, err)
}

func TestMigrateV1ToV2(t *testing.T) {
	migrated := MigrateV1ToV2(map[string]float64{
		"pagerank":   0.2,
		"degree":     4,
		"importance": 9.9,
	}, 5)

	assert.Equal(t, 0.2, migrated["pagerank"])
	assert.Equal(t, 1.0, migrated["degree"])
	_, hasImportance := migrated["importance"]
	assert.False(t, hasImportance)
}

func TestMetricsForLadder(t *testing.T) {
	base := MetricsFor(SchemaVersion{Major: 1})
	assert.True(t, base["pagerank"])
	assert.True(t, base["degree"])
	assert.True(t, base["betweenness"])
	assert.False(t, base["importance"])

	assert.True(t, MetricsFor(SchemaVersion{Major: 1, Minor: 1})["importance"])
	assert.True(t, MetricsFor(SchemaVersion{Major: 1, Minor: 2})["eigenvector"])

	v2 := MetricsFor(SchemaV2)
	assert.True(t, v2["importance"])
	assert.True(t, v2["eigenvector"])
	assert.False(t, v2["closeness"])

	assert.True(t, MetricsFor(SchemaVersion{Major: 2, Minor: 1})["closeness"])
	latest := MetricsFor(SchemaLatest)
	assert.True(t, latest["closeness"])
	assert.True(t, latest["harmonic"])
}

func TestFormatScoresByVersion(t *testing.T) {
	stored := map[string]float64{
		"pagerank":   0.2,
		"degree":     4,
		"importance": 9.9,
		"closeness":  0.7,
	}

	v10 := FormatScores(SchemaVersion{Major: 1}, stored, 5)
	assert.Equal(t, 4.0, v10["degree"])
	assert.NotContains(t, v10, "importance")
	assert.NotContains(t, v10, "closeness")
	assert.Equal(t, "1.0.0", v10["schema_version"])

	v11 := FormatScores(SchemaVersion{Major: 1, Minor: 1}, stored, 5)
	assert.Equal(t, 9.9, v11["importance"])
	assert.NotContains(t, v11, "closeness")

	v20 := FormatScores(SchemaV2, stored, 5)
	assert.Equal(t, 1.0, v20["degree"])
	assert.Equal(t, 9.9, v20["importance"])
	assert.NotContains(t, v20, "closeness")

	v22 := FormatScores(SchemaLatest, stored, 5)
	assert.Equal(t, 1.0, v22["degree"])
	assert.Equal(t, 9.9, v22["importance"])
	assert.Equal(t, 0.7, v22["closeness"])
	assert.Equal(t, "2.2.0", v22["schema_version"])
}

// recordingGraph captures ExecuteQuery traffic for storage tests.
// Unused GraphDriver methods come from the embedded nil interface.
type recordingGraph struct {
	driver.GraphDriver

	mu          sync.Mutex
	statuses    []string
	failBatches bool

	active    int
	maxActive int
}

func (r *recordingGraph) ExecuteQuery(query string, params map[string]interface{}) (interface{}, interface{}, interface{}, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	if s, ok := params["status"].(string); ok {
		r.statuses = append(r.statuses, s)
	}
	fail := r.failBatches && strings.Contains(query, "UNWIND")
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	if fail {
		return nil, nil, nil, errors.New("write refused")
	}
	return nil, nil, nil, nil
}

func singleNodeMetrics() *Metrics {
	return &Metrics{
		PageRank:    map[string]float64{"n1": 0.5},
		Degree:      map[string]float64{"n1": 2},
		Betweenness: map[string]float64{"n1": 0},
		Importance:  map[string]float64{"n1": 1},
	}
}

func TestStoreWalksTransactionLifecycle(t *testing.T) {
	g := &recordingGraph{}
	storage := NewAtomicStorage(g, nil)

	_, err := storage.Store(context.Background(), "g1", singleNodeMetrics())
	require.NoError(t, err)
	assert.Equal(t, []string{TxStatusPending, TxStatusInProgress, TxStatusCommitted}, g.statuses)
}

func TestStoreMarksFailedBeforeRollback(t *testing.T) {
	g := &recordingGraph{failBatches: true}
	storage := NewAtomicStorage(g, nil)

	_, err := storage.Store(context.Background(), "g1", singleNodeMetrics())
	require.Error(t, err)
	assert.Equal(t, []string{TxStatusPending, TxStatusInProgress, TxStatusFailed, TxStatusRolledBack}, g.statuses)
}

func TestStoreSerializesConcurrentTransactions(t *testing.T) {
	g := &recordingGraph{}
	storage := NewAtomicStorage(g, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.Store(context.Background(), "g1", singleNodeMetrics())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, g.maxActive)
}

func TestRemoteClientFallsBackWhenServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewRemoteClient(RemoteConfig{BaseURL: server.URL}, nil, nil)
	_, err := client.Calculate(context.Background(), "g")
	assert.Error(t, err)
}

func TestRemoteClientParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/centrality/calculate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pagerank": {"a": 0.3}, "degree": {"a": 2}, "betweenness": {"a": 0}, "importance": {"a": 1.5}}`))
	}))
	defer server.Close()

	client := NewRemoteClient(RemoteConfig{BaseURL: server.URL}, nil, nil)
	metrics, err := client.Calculate(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, 0.3, metrics.PageRank["a"])
	assert.Equal(t, 1.5, metrics.Importance["a"])
}
