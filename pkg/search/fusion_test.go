package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRRFSingleList(t *testing.T) {
	ids, scores := RRF([][]string{{"a", "b", "c"}}, 60)

	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.InDelta(t, 1.0/61, scores["a"], 1e-9)
	assert.InDelta(t, 1.0/62, scores["b"], 1e-9)
	assert.InDelta(t, 1.0/63, scores["c"], 1e-9)
}

func TestRRFFusesAcrossLists(t *testing.T) {
	// b appears in both lists so it outranks the single-list leaders.
	ids, scores := RRF([][]string{
		{"a", "b"},
		{"b", "c"},
	}, 60)

	assert.Equal(t, "b", ids[0])
	assert.InDelta(t, 1.0/62+1.0/61, scores["b"], 1e-9)
	assert.InDelta(t, scores["a"], scores["c"], 1e-9)
}

func TestRRFTieBreakIsDeterministic(t *testing.T) {
	ids1, _ := RRF([][]string{{"x"}, {"y"}}, 60)
	ids2, _ := RRF([][]string{{"y"}, {"x"}}, 60)
	assert.Equal(t, ids1, ids2)
	assert.Equal(t, []string{"x", "y"}, ids1)
}

func TestMMRPrefersDiverseCandidates(t *testing.T) {
	query := []float32{1, 0}
	embeddings := map[string][]float32{
		"near":      {1, 0},
		"near-dup":  {0.999, 0.045},
		"orthogonal": {0, 1},
	}

	selected := MMR(query, []string{"near", "near-dup", "orthogonal"}, embeddings, 0.5, 2)

	assert.Equal(t, []string{"near", "orthogonal"}, selected)
}

func TestMMRLimitAndMissingEmbeddings(t *testing.T) {
	query := []float32{1, 0}
	embeddings := map[string][]float32{"a": {1, 0}}

	selected := MMR(query, []string{"b", "a"}, embeddings, 0.5, 0)
	assert.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0])
}

func TestNormalizeByMax(t *testing.T) {
	scores := map[string]float64{"a": 4, "b": 2, "c": 0}
	normalizeByMax(scores)
	assert.Equal(t, 1.0, scores["a"])
	assert.Equal(t, 0.5, scores["b"])
	assert.Equal(t, 0.0, scores["c"])

	empty := map[string]float64{"a": 0}
	normalizeByMax(empty)
	assert.Equal(t, 0.0, empty["a"])
}
