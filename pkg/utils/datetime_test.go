package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2024, 6, 1, 7, 0, 0, 0, est)

	got := EnsureUTC(local)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 12, got.Hour())
	assert.True(t, local.Equal(got))

	already := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, already, EnsureUTC(already))
}

func TestEnsureUTCPtr(t *testing.T) {
	assert.Nil(t, EnsureUTCPtr(nil))

	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2024, 6, 1, 7, 0, 0, 0, est)
	got := EnsureUTCPtr(&local)
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, local.Equal(*got))
}

func TestParseDBDate(t *testing.T) {
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseDBDate("2024-06-01T12:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got))

	got, err = ParseDBDate("2024-06-01T12:00:00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.Hour())

	got, err = ParseDBDate(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseDBDate(42)
	require.Error(t, err)
}
