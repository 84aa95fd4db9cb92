package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/graphmem/pkg/crossencoder"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/embedder"
	"github.com/soundprediction/graphmem/pkg/types"
	"github.com/soundprediction/graphmem/pkg/utils"
)

// SearchMethod identifies a retrieval strategy.
type SearchMethod string

const (
	// CosineSimilarity retrieves by embedding distance.
	CosineSimilarity SearchMethod = "cosine_similarity"
	// BM25 retrieves by fulltext match.
	BM25 SearchMethod = "bm25"
	// BreadthFirstSearch retrieves by graph traversal from center nodes.
	BreadthFirstSearch SearchMethod = "bfs"
)

// RerankerType identifies the reranking stage applied after fusion.
type RerankerType string

const (
	RRFRerankType             RerankerType = "rrf"
	MMRRerankType             RerankerType = "mmr"
	CrossEncoderRerankType    RerankerType = "cross_encoder"
	NodeDistanceRerankType    RerankerType = "node_distance"
	EpisodeMentionsRerankType RerankerType = "episode_mentions"
)

// DefaultRerankMultiplier widens the candidate pool handed to rerankers.
const DefaultRerankMultiplier = 3

// NodeConfig selects methods and reranker for node retrieval.
type NodeConfig struct {
	SearchMethods []SearchMethod
	Reranker      RerankerType
	MMRLambda     float64
	MinScore      float64
}

// EdgeConfig selects methods and reranker for edge retrieval.
type EdgeConfig struct {
	SearchMethods []SearchMethod
	Reranker      RerankerType
	MMRLambda     float64
	MinScore      float64
}

// EpisodeConfig selects methods and reranker for episode retrieval:
// similarity over the content embedding, fulltext over the content.
type EpisodeConfig struct {
	SearchMethods []SearchMethod
	Reranker      RerankerType
	MMRLambda     float64
	MinScore      float64
}

// Config drives one hybrid search invocation.
type Config struct {
	Limit              int
	RRFK               int
	RerankMultiplier   int
	CenterNodeID       string
	CenterNodeDistance int
	MinScore           float64
	IncludeInvalidated bool
	NodeConfig         *NodeConfig
	EdgeConfig         *EdgeConfig
	EpisodeConfig      *EpisodeConfig
}

// Result carries fused, reranked candidates with their final scores.
type Result struct {
	Nodes         []*types.Node
	Edges         []*types.Edge
	Episodes      []*types.Node
	NodeScores    map[string]float64
	EdgeScores    map[string]float64
	EpisodeScores map[string]float64
}

// Searcher runs hybrid retrieval over the graph: per-method candidate
// lists, reciprocal rank fusion, then an optional reranking stage.
type Searcher struct {
	driver   driver.GraphDriver
	embedder embedder.Client
	reranker crossencoder.Client
	logger   *slog.Logger
}

// NewSearcher creates a searcher. The reranker may be nil; cross-encoder
// configs then degrade to RRF ordering.
func NewSearcher(d driver.GraphDriver, emb embedder.Client, reranker crossencoder.Client, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{driver: d, embedder: emb, reranker: reranker, logger: logger}
}

// Search runs the configured retrieval for one query and group. An empty
// query with a center node degrades to pure graph traversal; no results
// is a valid empty outcome, not an error.
func (s *Searcher) Search(ctx context.Context, query, groupID string, config *Config) (*Result, error) {
	if config == nil {
		config = CombinedHybridSearchRRF()
	}
	limit := config.Limit
	if limit <= 0 {
		limit = utils.DefaultPageLimit
	}
	multiplier := config.RerankMultiplier
	if multiplier <= 0 {
		multiplier = DefaultRerankMultiplier
	}
	poolSize := limit * multiplier

	var queryVector []float32
	if strings.TrimSpace(query) != "" && s.needsEmbedding(config) {
		vec, err := s.embedder.EmbedSingle(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		queryVector = vec
	}

	result := &Result{
		NodeScores:    make(map[string]float64),
		EdgeScores:    make(map[string]float64),
		EpisodeScores: make(map[string]float64),
	}

	// The per-kind retrievers hit disjoint indexes; run them in parallel.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	if config.NodeConfig != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nodes, scores, err := s.searchNodes(ctx, query, queryVector, groupID, config, poolSize, limit)
			if err != nil {
				fail(err)
				return
			}
			result.Nodes = nodes
			result.NodeScores = scores
		}()
	}

	if config.EdgeConfig != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			edges, scores, err := s.searchEdges(ctx, query, queryVector, groupID, config, poolSize, limit)
			if err != nil {
				fail(err)
				return
			}
			result.Edges = edges
			result.EdgeScores = scores
		}()
	}

	if config.EpisodeConfig != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			episodes, scores, err := s.searchEpisodes(ctx, query, queryVector, groupID, config, poolSize, limit)
			if err != nil {
				fail(err)
				return
			}
			result.Episodes = episodes
			result.EpisodeScores = scores
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func (s *Searcher) needsEmbedding(config *Config) bool {
	check := func(methods []SearchMethod, reranker RerankerType) bool {
		if reranker == MMRRerankType {
			return true
		}
		for _, m := range methods {
			if m == CosineSimilarity {
				return true
			}
		}
		return false
	}
	if config.NodeConfig != nil && check(config.NodeConfig.SearchMethods, config.NodeConfig.Reranker) {
		return true
	}
	if config.EdgeConfig != nil && check(config.EdgeConfig.SearchMethods, config.EdgeConfig.Reranker) {
		return true
	}
	if config.EpisodeConfig != nil && check(config.EpisodeConfig.SearchMethods, config.EpisodeConfig.Reranker) {
		return true
	}
	return false
}

func (s *Searcher) searchNodes(ctx context.Context, query string, queryVector []float32, groupID string, config *Config, poolSize, limit int) ([]*types.Node, map[string]float64, error) {
	nc := config.NodeConfig
	candidates := make(map[string]*types.Node)
	var rankings [][]string

	for _, method := range nc.SearchMethods {
		var ranking []string
		switch method {
		case CosineSimilarity:
			if len(queryVector) == 0 {
				continue
			}
			nodes, err := s.driver.SearchNodesByEmbedding(ctx, queryVector, groupID, poolSize)
			if err != nil {
				return nil, nil, fmt.Errorf("node similarity search failed: %w", err)
			}
			for _, n := range nodes {
				candidates[n.ID] = n
				ranking = append(ranking, n.ID)
			}
		case BM25:
			if strings.TrimSpace(query) == "" {
				continue
			}
			nodes, err := s.driver.SearchNodes(ctx, query, groupID, &driver.SearchOptions{Limit: poolSize})
			if err != nil {
				return nil, nil, fmt.Errorf("node fulltext search failed: %w", err)
			}
			for _, n := range nodes {
				candidates[n.ID] = n
				ranking = append(ranking, n.ID)
			}
		case BreadthFirstSearch:
			if config.CenterNodeID == "" {
				continue
			}
			ranking2, err := s.bfsNodeRanking(ctx, groupID, config, candidates)
			if err != nil {
				return nil, nil, err
			}
			ranking = ranking2
		}
		if len(ranking) > 0 {
			rankings = append(rankings, ranking)
		}
	}

	if len(rankings) == 0 {
		return nil, map[string]float64{}, nil
	}

	ids, scores := RRF(rankings, config.RRFK)
	ids = s.rerankNodeIDs(ctx, query, queryVector, groupID, config, ids, scores, candidates, limit)

	minScore := nc.MinScore
	if config.MinScore > minScore {
		minScore = config.MinScore
	}

	var nodes []*types.Node
	out := make(map[string]float64)
	for _, id := range ids {
		if scores[id] < minScore {
			continue
		}
		if n, ok := candidates[id]; ok {
			nodes = append(nodes, n)
			out[id] = scores[id]
		}
		if len(nodes) >= limit {
			break
		}
	}
	return nodes, out, nil
}

func (s *Searcher) searchEdges(ctx context.Context, query string, queryVector []float32, groupID string, config *Config, poolSize, limit int) ([]*types.Edge, map[string]float64, error) {
	ec := config.EdgeConfig
	candidates := make(map[string]*types.Edge)
	var rankings [][]string

	for _, method := range ec.SearchMethods {
		var ranking []string
		switch method {
		case CosineSimilarity:
			if len(queryVector) == 0 {
				continue
			}
			edges, err := s.driver.SearchEdgesByEmbedding(ctx, queryVector, groupID, poolSize)
			if err != nil {
				return nil, nil, fmt.Errorf("edge similarity search failed: %w", err)
			}
			for _, e := range edges {
				candidates[e.ID] = e
				ranking = append(ranking, e.ID)
			}
		case BM25:
			if strings.TrimSpace(query) == "" {
				continue
			}
			edges, err := s.driver.SearchEdges(ctx, query, groupID, &driver.SearchOptions{Limit: poolSize})
			if err != nil {
				return nil, nil, fmt.Errorf("edge fulltext search failed: %w", err)
			}
			for _, e := range edges {
				candidates[e.ID] = e
				ranking = append(ranking, e.ID)
			}
		case BreadthFirstSearch:
			if config.CenterNodeID == "" {
				continue
			}
			edges, err := s.driver.GetEdgesByNode(ctx, config.CenterNodeID, groupID)
			if err != nil {
				return nil, nil, fmt.Errorf("edge bfs failed: %w", err)
			}
			for _, e := range edges {
				candidates[e.ID] = e
				ranking = append(ranking, e.ID)
			}
		}
		if len(ranking) > 0 {
			rankings = append(rankings, ranking)
		}
	}

	if len(rankings) == 0 {
		return nil, map[string]float64{}, nil
	}

	ids, scores := RRF(rankings, config.RRFK)

	// Invalidated facts are either dropped or demoted below every still
	// valid fact, preserving relative order within each class.
	if !config.IncludeInvalidated {
		filtered := ids[:0]
		for _, id := range ids {
			if e := candidates[id]; e != nil && e.InvalidAt == nil {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	} else {
		sort.SliceStable(ids, func(i, j int) bool {
			vi := candidates[ids[i]] != nil && candidates[ids[i]].InvalidAt == nil
			vj := candidates[ids[j]] != nil && candidates[ids[j]].InvalidAt == nil
			return vi && !vj
		})
	}

	ids = s.rerankEdgeIDs(ctx, query, queryVector, config, ids, scores, candidates, limit)

	minScore := ec.MinScore
	if config.MinScore > minScore {
		minScore = config.MinScore
	}

	var edges []*types.Edge
	out := make(map[string]float64)
	for _, id := range ids {
		if scores[id] < minScore {
			continue
		}
		if e, ok := candidates[id]; ok {
			edges = append(edges, e)
			out[id] = scores[id]
		}
		if len(edges) >= limit {
			break
		}
	}
	return edges, out, nil
}

func (s *Searcher) searchEpisodes(ctx context.Context, query string, queryVector []float32, groupID string, config *Config, poolSize, limit int) ([]*types.Node, map[string]float64, error) {
	epc := config.EpisodeConfig
	candidates := make(map[string]*types.Node)
	var rankings [][]string

	for _, method := range epc.SearchMethods {
		var ranking []string
		switch method {
		case CosineSimilarity:
			if len(queryVector) == 0 {
				continue
			}
			episodes, err := s.driver.SearchEpisodesByEmbedding(ctx, queryVector, groupID, poolSize)
			if err != nil {
				return nil, nil, fmt.Errorf("episode similarity search failed: %w", err)
			}
			for _, ep := range episodes {
				candidates[ep.ID] = ep
				ranking = append(ranking, ep.ID)
			}
		case BM25:
			if strings.TrimSpace(query) == "" {
				continue
			}
			episodes, err := s.driver.SearchEpisodes(ctx, query, groupID, &driver.SearchOptions{Limit: poolSize})
			if err != nil {
				return nil, nil, fmt.Errorf("episode fulltext search failed: %w", err)
			}
			for _, ep := range episodes {
				candidates[ep.ID] = ep
				ranking = append(ranking, ep.ID)
			}
		}
		if len(ranking) > 0 {
			rankings = append(rankings, ranking)
		}
	}

	if len(rankings) == 0 {
		return nil, map[string]float64{}, nil
	}

	ids, scores := RRF(rankings, config.RRFK)
	ids = s.rerankEpisodeIDs(ctx, query, queryVector, config, ids, scores, candidates, limit)

	minScore := epc.MinScore
	if config.MinScore > minScore {
		minScore = config.MinScore
	}

	var episodes []*types.Node
	out := make(map[string]float64)
	for _, id := range ids {
		if scores[id] < minScore {
			continue
		}
		if ep, ok := candidates[id]; ok {
			episodes = append(episodes, ep)
			out[id] = scores[id]
		}
		if len(episodes) >= limit {
			break
		}
	}
	return episodes, out, nil
}

func (s *Searcher) rerankEpisodeIDs(ctx context.Context, query string, queryVector []float32, config *Config, ids []string, scores map[string]float64, candidates map[string]*types.Node, limit int) []string {
	epc := config.EpisodeConfig
	switch epc.Reranker {
	case MMRRerankType:
		embeddings := make(map[string][]float32, len(candidates))
		for id, ep := range candidates {
			embeddings[id] = ep.ContentEmbedding
		}
		lambda := epc.MMRLambda
		if lambda == 0 {
			lambda = DefaultMMRLambda
		}
		return MMR(queryVector, ids, embeddings, lambda, limit)

	case CrossEncoderRerankType:
		if s.reranker == nil {
			return ids
		}
		passages := make([]string, len(ids))
		byPassage := make(map[string]string, len(ids))
		for i, id := range ids {
			passages[i] = candidates[id].Content
			byPassage[candidates[id].Content] = id
		}
		ranked, err := s.reranker.Rank(ctx, query, passages)
		if err != nil {
			s.logger.Warn("cross-encoder rerank failed, keeping rrf order", "error", err)
			return ids
		}
		out := make([]string, 0, len(ranked))
		for _, rp := range ranked {
			if id, ok := byPassage[rp.Passage]; ok {
				scores[id] = rp.Score
				out = append(out, id)
			}
		}
		return out

	default:
		return ids
	}
}

func (s *Searcher) bfsNodeRanking(ctx context.Context, groupID string, config *Config, candidates map[string]*types.Node) ([]string, error) {
	maxDistance := config.CenterNodeDistance
	if maxDistance <= 0 {
		maxDistance = 2
	}
	distances, err := s.driver.GetNeighborsWithDistance(ctx, config.CenterNodeID, groupID, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("node bfs failed: %w", err)
	}

	ids := make([]string, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if distances[ids[i]] != distances[ids[j]] {
			return distances[ids[i]] < distances[ids[j]]
		}
		return ids[i] < ids[j]
	})

	missing := make([]string, 0)
	for _, id := range ids {
		if _, ok := candidates[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		nodes, err := s.driver.GetNodes(ctx, missing, groupID)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			candidates[n.ID] = n
		}
	}
	return ids, nil
}

func (s *Searcher) rerankNodeIDs(ctx context.Context, query string, queryVector []float32, groupID string, config *Config, ids []string, scores map[string]float64, candidates map[string]*types.Node, limit int) []string {
	nc := config.NodeConfig
	switch nc.Reranker {
	case MMRRerankType:
		embeddings := make(map[string][]float32, len(candidates))
		for id, n := range candidates {
			embeddings[id] = n.NameEmbedding
		}
		lambda := nc.MMRLambda
		if lambda == 0 {
			lambda = DefaultMMRLambda
		}
		return MMR(queryVector, ids, embeddings, lambda, limit)

	case CrossEncoderRerankType:
		if s.reranker == nil {
			return ids
		}
		passages := make([]string, len(ids))
		byPassage := make(map[string]string, len(ids))
		for i, id := range ids {
			n := candidates[id]
			passage := n.Name
			if n.Summary != "" {
				passage += ": " + n.Summary
			}
			passages[i] = passage
			byPassage[passage] = id
		}
		ranked, err := s.reranker.Rank(ctx, query, passages)
		if err != nil {
			s.logger.Warn("cross-encoder rerank failed, keeping rrf order", "error", err)
			return ids
		}
		out := make([]string, 0, len(ranked))
		for _, rp := range ranked {
			if id, ok := byPassage[rp.Passage]; ok {
				scores[id] = rp.Score
				out = append(out, id)
			}
		}
		return out

	case NodeDistanceRerankType:
		if config.CenterNodeID == "" {
			return ids
		}
		maxDistance := config.CenterNodeDistance
		if maxDistance <= 0 {
			maxDistance = 3
		}
		distances, err := s.driver.GetNeighborsWithDistance(ctx, config.CenterNodeID, groupID, maxDistance)
		if err != nil {
			s.logger.Warn("node distance rerank failed, keeping rrf order", "error", err)
			return ids
		}
		for _, id := range ids {
			if d, ok := distances[id]; ok {
				scores[id] = 1.0 / float64(1+d)
			} else if id == config.CenterNodeID {
				scores[id] = 1.0
			} else {
				scores[id] = 0.0
			}
		}
		sorted := append([]string(nil), ids...)
		sort.SliceStable(sorted, func(i, j int) bool { return scores[sorted[i]] > scores[sorted[j]] })
		return sorted

	default:
		return ids
	}
}

func (s *Searcher) rerankEdgeIDs(ctx context.Context, query string, queryVector []float32, config *Config, ids []string, scores map[string]float64, candidates map[string]*types.Edge, limit int) []string {
	ec := config.EdgeConfig
	switch ec.Reranker {
	case MMRRerankType:
		embeddings := make(map[string][]float32, len(candidates))
		for id, e := range candidates {
			embeddings[id] = e.FactEmbedding
		}
		lambda := ec.MMRLambda
		if lambda == 0 {
			lambda = DefaultMMRLambda
		}
		return MMR(queryVector, ids, embeddings, lambda, limit)

	case CrossEncoderRerankType:
		if s.reranker == nil {
			return ids
		}
		passages := make([]string, len(ids))
		byPassage := make(map[string]string, len(ids))
		for i, id := range ids {
			passages[i] = candidates[id].Fact
			byPassage[candidates[id].Fact] = id
		}
		ranked, err := s.reranker.Rank(ctx, query, passages)
		if err != nil {
			s.logger.Warn("cross-encoder rerank failed, keeping rrf order", "error", err)
			return ids
		}
		out := make([]string, 0, len(ranked))
		for _, rp := range ranked {
			if id, ok := byPassage[rp.Passage]; ok {
				scores[id] = rp.Score
				out = append(out, id)
			}
		}
		return out

	case EpisodeMentionsRerankType:
		for _, id := range ids {
			scores[id] = float64(len(candidates[id].Episodes))
		}
		normalizeByMax(scores)
		sorted := append([]string(nil), ids...)
		sort.SliceStable(sorted, func(i, j int) bool { return scores[sorted[i]] > scores[sorted[j]] })
		return sorted

	default:
		return ids
	}
}
