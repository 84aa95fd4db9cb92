package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/types"
)

func entity(id, name string, created time.Time) *types.Node {
	return &types.Node{
		ID: id, Name: name, Type: types.EntityNodeType, CreatedAt: created,
	}
}

func TestGroupByNormalizedName(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	groups := GroupByNormalizedName([]*types.Node{
		entity("n2", `"Alice"`, newer),
		entity("n1", "Alice", older),
		entity("n3", "Bob", older),
	})

	require.Len(t, groups, 2)
	aliceGroup := groups[0]
	require.Len(t, aliceGroup, 2)
	// Oldest node survives the merge.
	assert.Equal(t, "n1", aliceGroup[0].ID)
	assert.Equal(t, "n2", aliceGroup[1].ID)
}

func TestMergeGroupingsUnions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := entity("a", "Robert", now)
	b := entity("b", "Bob", now.Add(time.Minute))
	c := entity("c", "Bobby", now.Add(2*time.Minute))
	d := entity("d", "Carol", now)

	// Exact grouping sees no duplicates; the fuzzy pass links the
	// nicknames in two separate pairs sharing b.
	exact := [][]*types.Node{{a}, {b}, {c}, {d}}
	fuzzy := [][]*types.Node{{a, b}, {b, c}}

	merged := mergeGroupings(exact, fuzzy)

	var bobGroup []*types.Node
	for _, g := range merged {
		if len(g) > 1 {
			bobGroup = g
		}
	}
	require.Len(t, bobGroup, 3)
	assert.Equal(t, "a", bobGroup[0].ID)
}

func TestMergeGroupingsDisjointStayApart(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := entity("a", "Alice", now)
	b := entity("b", "Bob", now)

	merged := mergeGroupings([][]*types.Node{{a}, {b}}, nil)
	assert.Len(t, merged, 2)
	for _, g := range merged {
		assert.Len(t, g, 1)
	}
}
