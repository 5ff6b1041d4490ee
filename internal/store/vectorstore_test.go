package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixStore_AddAndSearch(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(3))
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
}

func TestMatrixStore_SearchDeterministicOrdering(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {1, 0}}))

	r1, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	r2, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	// Equal scores break ties by ID.
	assert.Equal(t, "x", r1[0].ID)
	assert.Equal(t, "y", r1[1].ID)
}

func TestMatrixStore_DimensionMismatch(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(3))
	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	assert.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestMatrixStore_Delete(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Delete(ctx, []string{"a"}))

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.Equal(t, 1, s.Count())
}

func TestMatrixStore_UpsertReplacesVector(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, s.Count())
	results, err := s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestMatrixStore_EmptySearchReturnsEmpty(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatrixStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	path := filepath.Join(t.TempDir(), "matrix.gob")
	require.NoError(t, s.Save(path))

	s2 := NewMatrixStore(DefaultVectorStoreConfig(2))
	require.NoError(t, s2.Load(path))

	assert.Equal(t, 2, s2.Count())
	assert.True(t, s2.Contains("a"))
	assert.True(t, s2.Contains("b"))
}

func TestMatrixStore_AllIDs(t *testing.T) {
	s := NewMatrixStore(DefaultVectorStoreConfig(2))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	ids := s.AllIDs()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
