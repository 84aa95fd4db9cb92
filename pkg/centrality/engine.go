// Package centrality computes graph centrality metrics for entity nodes
// and stores them atomically with transaction logging.
package centrality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/soundprediction/graphmem/pkg/driver"
)

const (
	// DampingFactor for PageRank.
	DampingFactor = 0.85
	// PageRankIterations bounds the power iteration.
	PageRankIterations = 20
	// MaxBetweennessSamples caps the number of BFS sources.
	MaxBetweennessSamples = 50
)

// DegreeDirection selects which edges count toward degree.
type DegreeDirection string

const (
	DegreeIn   DegreeDirection = "in"
	DegreeOut  DegreeDirection = "out"
	DegreeBoth DegreeDirection = "both"
)

// Weights blend the individual metrics into the composite importance.
type Weights struct {
	PageRank    float64
	Degree      float64
	Betweenness float64
}

// DefaultWeights is the standard importance blend.
var DefaultWeights = Weights{PageRank: 0.5, Degree: 0.3, Betweenness: 0.2}

// Metrics holds all computed scores keyed by node uuid.
type Metrics struct {
	PageRank    map[string]float64 `json:"pagerank"`
	Degree      map[string]float64 `json:"degree"`
	Betweenness map[string]float64 `json:"betweenness"`
	Importance  map[string]float64 `json:"importance"`
}

// graph is the in-memory adjacency snapshot metrics are computed over.
type graph struct {
	ids        []string
	index      map[string]int
	out        [][]int
	in         [][]int
	undirected [][]int
}

// Engine computes centrality metrics over one group's entity graph.
type Engine struct {
	driver  driver.GraphDriver
	weights Weights
	logger  *slog.Logger
}

// NewEngine creates a centrality engine.
func NewEngine(d driver.GraphDriver, weights Weights, logger *slog.Logger) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{driver: d, weights: weights, logger: logger}
}

// CalculateAll computes pagerank, degree, betweenness and the composite
// importance for every entity node in the group.
func (e *Engine) CalculateAll(ctx context.Context, groupID string) (*Metrics, error) {
	g, err := e.loadGraph(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(g.ids) == 0 {
		return &Metrics{
			PageRank:    map[string]float64{},
			Degree:      map[string]float64{},
			Betweenness: map[string]float64{},
			Importance:  map[string]float64{},
		}, nil
	}

	metrics := &Metrics{
		PageRank:    pageRank(g),
		Degree:      degree(g, DegreeBoth),
		Betweenness: betweenness(g),
		Importance:  make(map[string]float64, len(g.ids)),
	}
	for _, id := range g.ids {
		metrics.Importance[id] = e.weights.PageRank*(metrics.PageRank[id]*1000) +
			e.weights.Degree*math.Log(metrics.Degree[id]+1) +
			e.weights.Betweenness*(metrics.Betweenness[id]*100)
	}
	return metrics, nil
}

// CalculatePageRank computes only pagerank.
func (e *Engine) CalculatePageRank(ctx context.Context, groupID string) (map[string]float64, error) {
	g, err := e.loadGraph(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return pageRank(g), nil
}

// CalculateDegree computes degree centrality for the given direction.
func (e *Engine) CalculateDegree(ctx context.Context, groupID string, direction DegreeDirection) (map[string]float64, error) {
	g, err := e.loadGraph(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return degree(g, direction), nil
}

// CalculateBetweenness computes sampled betweenness centrality.
func (e *Engine) CalculateBetweenness(ctx context.Context, groupID string) (map[string]float64, error) {
	g, err := e.loadGraph(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return betweenness(g), nil
}

func (e *Engine) loadGraph(ctx context.Context, groupID string) (*graph, error) {
	records, _, _, err := e.driver.ExecuteQuery(`
		MATCH (n:Entity {group_id: $group_id})
		OPTIONAL MATCH (n)-[:RELATES_TO]->(m:Entity {group_id: $group_id})
		RETURN n.uuid AS uuid, collect(DISTINCT m.uuid) AS targets`,
		map[string]interface{}{"group_id": groupID})
	if err != nil {
		return nil, fmt.Errorf("failed to load graph for centrality: %w", err)
	}
	rows, ok := records.([]map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected graph result type %T", records)
	}

	edges := make(map[string][]string, len(rows))
	for _, row := range rows {
		id, _ := row["uuid"].(string)
		if id == "" {
			continue
		}
		edges[id] = nil
		if targets, ok := row["targets"].([]interface{}); ok {
			for _, t := range targets {
				if s, ok := t.(string); ok && s != "" {
					edges[id] = append(edges[id], s)
				}
			}
		}
	}
	return buildGraph(edges), nil
}

// buildGraph indexes an id-to-targets adjacency into dense form.
func buildGraph(edges map[string][]string) *graph {
	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	g := &graph{
		ids:        ids,
		index:      index,
		out:        make([][]int, len(ids)),
		in:         make([][]int, len(ids)),
		undirected: make([][]int, len(ids)),
	}
	seen := make(map[[2]int]bool)
	for id, targets := range edges {
		u := index[id]
		for _, target := range targets {
			v, ok := index[target]
			if !ok || u == v {
				continue
			}
			g.out[u] = append(g.out[u], v)
			g.in[v] = append(g.in[v], u)
			if !seen[[2]int{u, v}] {
				seen[[2]int{u, v}] = true
				seen[[2]int{v, u}] = true
				g.undirected[u] = append(g.undirected[u], v)
				g.undirected[v] = append(g.undirected[v], u)
			}
		}
	}
	return g
}

// pageRank runs power iteration with dangling-node mass redistribution.
func pageRank(g *graph) map[string]float64 {
	n := len(g.ids)
	if n == 0 {
		return map[string]float64{}
	}

	ranks := make([]float64, n)
	for i := range ranks {
		ranks[i] = 1.0 / float64(n)
	}

	for iter := 0; iter < PageRankIterations; iter++ {
		next := make([]float64, n)
		dangling := 0.0
		for u := 0; u < n; u++ {
			if len(g.out[u]) == 0 {
				dangling += ranks[u]
				continue
			}
			share := ranks[u] / float64(len(g.out[u]))
			for _, v := range g.out[u] {
				next[v] += share
			}
		}
		base := (1-DampingFactor)/float64(n) + DampingFactor*dangling/float64(n)
		for i := range next {
			next[i] = base + DampingFactor*next[i]
		}
		ranks = next
	}

	out := make(map[string]float64, n)
	for i, id := range g.ids {
		out[id] = ranks[i]
	}
	return out
}

// degree counts adjacent edges in the requested direction.
func degree(g *graph, direction DegreeDirection) map[string]float64 {
	out := make(map[string]float64, len(g.ids))
	for i, id := range g.ids {
		switch direction {
		case DegreeIn:
			out[id] = float64(len(g.in[i]))
		case DegreeOut:
			out[id] = float64(len(g.out[i]))
		default:
			out[id] = float64(len(g.undirected[i]))
		}
	}
	return out
}

// betweenness runs Brandes' accumulation from a deterministic sample of
// sources, extrapolates to the full graph and normalizes by
// 2/((N-1)(N-2)).
func betweenness(g *graph) map[string]float64 {
	n := len(g.ids)
	out := make(map[string]float64, n)
	for _, id := range g.ids {
		out[id] = 0
	}
	if n < 3 {
		return out
	}

	samples := MaxBetweennessSamples
	if half := n / 2; half < samples {
		samples = half
	}
	if samples < 1 {
		samples = 1
	}
	stride := n / samples

	scores := make([]float64, n)
	sampleCount := 0
	for s := 0; s < n; s += stride {
		brandesAccumulate(g, s, scores)
		sampleCount++
	}

	// Each undirected pair is counted from both endpoints, hence the
	// halving before extrapolation.
	factor := float64(n) / float64(sampleCount)
	norm := 2.0 / (float64(n-1) * float64(n-2))
	for i, id := range g.ids {
		out[id] = scores[i] / 2 * factor * norm
	}
	return out
}

func brandesAccumulate(g *graph, source int, scores []float64) {
	n := len(g.ids)
	stack := make([]int, 0, n)
	preds := make([][]int, n)
	sigma := make([]float64, n)
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	sigma[source] = 1
	dist[source] = 0

	queue := []int{source}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		stack = append(stack, u)
		for _, v := range g.undirected[u] {
			if dist[v] < 0 {
				dist[v] = dist[u] + 1
				queue = append(queue, v)
			}
			if dist[v] == dist[u]+1 {
				sigma[v] += sigma[u]
				preds[v] = append(preds[v], u)
			}
		}
	}

	delta := make([]float64, n)
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != source {
			scores[w] += delta[w]
		}
	}
}
