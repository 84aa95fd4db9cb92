package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  Alice  ", "Alice"},
		{"collapses internal runs", "Acme \t Corp", "Acme Corp"},
		{"strips surrounding quotes", `"Bob Smith"`, "Bob Smith"},
		{"strips single quotes", "'Bob'", "Bob"},
		{"quotes then whitespace", ` " Bob " `, "Bob"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestDeterministicUUID(t *testing.T) {
	a := DeterministicUUID("episode-1", "entity-1")
	b := DeterministicUUID("episode-1", "entity-1")
	c := DeterministicUUID("episode-1", "entity-2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, DeterministicUUID("episode-1entity", "-1"))
}

func TestNormalizeNameIdempotent(t *testing.T) {
	inputs := []string{"  Alice  ", `"Acme   Corp"`, "plain", "a  b   c"}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once))
	}
}

func TestNormalizeL2(t *testing.T) {
	v := NormalizeL2([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	v := NormalizeL2([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestValidateGroupID(t *testing.T) {
	require.NoError(t, ValidateGroupID(""))
	require.NoError(t, ValidateGroupID("tenant-1_a"))
	err := ValidateGroupID("bad group!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGroupID)
}

func TestLuceneSanitize(t *testing.T) {
	assert.Equal(t, `foo\:bar\*`, LuceneSanitize("foo:bar*"))
	assert.Equal(t, "plain", LuceneSanitize("plain"))
}
