package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndSearchReturnsClosestFirst(t *testing.T) {
	idx, err := Open(t.TempDir(), 3)
	require.NoError(t, err)

	require.NoError(t, idx.Add("limitless:a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("limitless:b", []float32{0, 1, 0}))
	require.NoError(t, idx.Add("limitless:c", []float32{0.9, 0.1, 0}))

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "limitless:a", results[0].ID)
	assert.Equal(t, "limitless:c", results[1].ID)
}

func TestAddReplacesExistingRowInPlace(t *testing.T) {
	idx, err := Open(t.TempDir(), 2)
	require.NoError(t, err)

	require.NoError(t, idx.Add("news:x", []float32{1, 0}))
	require.NoError(t, idx.Add("news:x", []float32{0, 1}))

	assert.Equal(t, 1, idx.Stats().Count)

	results, err := idx.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestRemoveDropsIDFromStatsButKeepsFileIntact(t *testing.T) {
	idx, err := Open(t.TempDir(), 2)
	require.NoError(t, err)

	require.NoError(t, idx.Add("news:x", []float32{1, 0}))
	require.NoError(t, idx.Remove("news:x"))

	assert.Equal(t, 0, idx.Stats().Count)
	results, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemoveUnknownIDIsIdempotent(t *testing.T) {
	idx, err := Open(t.TempDir(), 2)
	require.NoError(t, err)
	assert.NoError(t, idx.Remove("does-not-exist"))
}

func TestRemoveNamespaceDropsOnlyMatchingPrefix(t *testing.T) {
	idx, err := Open(t.TempDir(), 2)
	require.NoError(t, err)

	require.NoError(t, idx.Add("news:1", []float32{1, 0}))
	require.NoError(t, idx.Add("news:2", []float32{0, 1}))
	require.NoError(t, idx.Add("weather:1", []float32{1, 1}))

	removed, err := idx.RemoveNamespace("news")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, idx.Stats().Count)
}

func TestOpenReloadsPersistedState(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Add("limitless:a", []float32{1, 2, 3}))
	require.NoError(t, idx.Add("limitless:b", []float32{4, 5, 6}))
	require.NoError(t, idx.Remove("limitless:a"))

	reopened, err := Open(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Stats().Count)

	results, err := reopened.Search([]float32{4, 5, 6}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "limitless:b", results[0].ID)
}

func TestOpenRejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Add("limitless:a", []float32{1, 2, 3}))

	_, err = Open(dir, 4)
	require.Error(t, err)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	idx, err := Open(t.TempDir(), 3)
	require.NoError(t, err)
	err = idx.Add("limitless:a", []float32{1, 2})
	assert.Error(t, err)
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	idx, err := Open(t.TempDir(), 3)
	require.NoError(t, err)
	_, err = idx.Search([]float32{1, 2}, 1)
	assert.Error(t, err)
}
