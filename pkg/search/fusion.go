package search

import (
	"sort"

	"github.com/soundprediction/graphmem/pkg/utils"
)

const (
	// DefaultRRFK is the reciprocal rank fusion smoothing constant.
	DefaultRRFK = 60
	// DefaultMMRLambda balances relevance against diversity.
	DefaultMMRLambda = 0.5
)

// RRF fuses ranked candidate lists by reciprocal rank: each candidate
// scores sum(1/(k+rank)) over the lists containing it, rank starting at 1.
// Returns ids sorted by descending fused score plus the score map.
func RRF(rankings [][]string, k int) ([]string, map[string]float64) {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for i, id := range ranking {
			rank := i + 1
			scores[id] += 1.0 / float64(k+rank)
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, scores
}

// MMR performs maximal marginal relevance selection over candidates with
// embeddings: it repeatedly picks the candidate maximizing
// lambda*sim(query, c) - (1-lambda)*max sim(c, selected), yielding a
// relevant but diverse prefix. Candidates without embeddings rank last.
func MMR(queryVector []float32, ids []string, embeddings map[string][]float32, lambda float64, limit int) []string {
	if lambda <= 0 {
		lambda = DefaultMMRLambda
	}
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	remaining := append([]string(nil), ids...)
	selected := make([]string, 0, limit)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, id := range remaining {
			relevance := utils.CosineSimilarity(queryVector, embeddings[id])

			redundancy := 0.0
			for _, chosen := range selected {
				if sim := utils.CosineSimilarity(embeddings[id], embeddings[chosen]); sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*relevance - (1-lambda)*redundancy
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// normalizeByMax scales scores so the best becomes 1.0.
func normalizeByMax(scores map[string]float64) {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return
	}
	for id := range scores {
		scores[id] /= max
	}
}
