package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelPropagationTwoClusters(t *testing.T) {
	// Two triangles joined by nothing.
	adjacency := map[string][]string{
		"a1": {"a2", "a3"},
		"a2": {"a1", "a3"},
		"a3": {"a1", "a2"},
		"b1": {"b2", "b3"},
		"b2": {"b1", "b3"},
		"b3": {"b1", "b2"},
	}

	clusters := LabelPropagation(adjacency, 20)

	assert.Len(t, clusters, 2)
	assert.Contains(t, clusters, "a1")
	assert.Contains(t, clusters, "b1")
	assert.Equal(t, []string{"a1", "a2", "a3"}, clusters["a1"])
	assert.Equal(t, []string{"b1", "b2", "b3"}, clusters["b1"])
}

func TestLabelPropagationIsolatedNodes(t *testing.T) {
	adjacency := map[string][]string{
		"lonely": nil,
		"x":      {"y"},
		"y":      {"x"},
	}

	clusters := LabelPropagation(adjacency, 20)

	assert.Equal(t, []string{"lonely"}, clusters["lonely"])
	assert.Equal(t, []string{"x", "y"}, clusters["x"])
}

func TestLabelPropagationDeterministic(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b", "c"},
		"b": {"a", "c"},
		"c": {"a", "b"},
	}

	first := LabelPropagation(adjacency, 20)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, LabelPropagation(adjacency, 20))
	}
}

func TestLabelPropagationEmpty(t *testing.T) {
	assert.Empty(t, LabelPropagation(map[string][]string{}, 20))
}
