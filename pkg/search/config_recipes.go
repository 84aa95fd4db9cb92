package search

import "github.com/soundprediction/graphmem/pkg/utils"

// Predefined search configurations covering the common retrieval shapes.
// Callers tweak Limit, CenterNodeID, and filters on the returned value.

// CombinedHybridSearchRRF fuses similarity and fulltext retrieval for
// both nodes and edges with reciprocal rank fusion. The default recipe.
func CombinedHybridSearchRRF() *Config {
	return &Config{
		Limit: utils.DefaultPageLimit,
		RRFK:  DefaultRRFK,
		NodeConfig: &NodeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity, BM25},
			Reranker:      RRFRerankType,
		},
		EdgeConfig: &EdgeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity, BM25},
			Reranker:      RRFRerankType,
		},
	}
}

// CombinedHybridSearchMMR trades some relevance for diversity by
// reranking fused candidates with maximal marginal relevance.
func CombinedHybridSearchMMR() *Config {
	config := CombinedHybridSearchRRF()
	config.NodeConfig.Reranker = MMRRerankType
	config.NodeConfig.MMRLambda = DefaultMMRLambda
	config.EdgeConfig.Reranker = MMRRerankType
	config.EdgeConfig.MMRLambda = DefaultMMRLambda
	return config
}

// CombinedHybridSearchCrossEncoder reranks a widened candidate pool with
// a cross-encoder for the highest quality ordering.
func CombinedHybridSearchCrossEncoder() *Config {
	config := CombinedHybridSearchRRF()
	config.RerankMultiplier = DefaultRerankMultiplier
	config.NodeConfig.Reranker = CrossEncoderRerankType
	config.EdgeConfig.Reranker = CrossEncoderRerankType
	return config
}

// NodeHybridSearchNodeDistance orders node results by graph distance
// from a center node. CenterNodeID must be set by the caller.
func NodeHybridSearchNodeDistance() *Config {
	return &Config{
		Limit: utils.DefaultPageLimit,
		RRFK:  DefaultRRFK,
		NodeConfig: &NodeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity, BM25},
			Reranker:      NodeDistanceRerankType,
		},
	}
}

// EdgeHybridSearchEpisodeMentions favors facts reinforced across many
// episodes.
func EdgeHybridSearchEpisodeMentions() *Config {
	return &Config{
		Limit: utils.DefaultPageLimit,
		RRFK:  DefaultRRFK,
		EdgeConfig: &EdgeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity, BM25},
			Reranker:      EpisodeMentionsRerankType,
		},
	}
}

// EpisodeHybridSearch retrieves ranked episodes by content similarity
// and fulltext match.
func EpisodeHybridSearch() *Config {
	return &Config{
		Limit: utils.DefaultPageLimit,
		RRFK:  DefaultRRFK,
		EpisodeConfig: &EpisodeConfig{
			SearchMethods: []SearchMethod{CosineSimilarity, BM25},
			Reranker:      RRFRerankType,
		},
	}
}

// NodeTraversalSearch retrieves purely by breadth-first traversal from a
// center node, no query embedding needed.
func NodeTraversalSearch() *Config {
	return &Config{
		Limit: utils.DefaultPageLimit,
		RRFK:  DefaultRRFK,
		NodeConfig: &NodeConfig{
			SearchMethods: []SearchMethod{BreadthFirstSearch},
			Reranker:      NodeDistanceRerankType,
		},
	}
}
