package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/logging"
)

func newFlat(t *testing.T, dim int) (*FlatIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index")
	idx, err := OpenFlatIndex(path, dim, "cosine", logging.NewNoopLogger())
	require.NoError(t, err)
	return idx, path
}

func TestAddSearchRemove(t *testing.T) {
	idx, _ := newFlat(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, 2, []float32{0, 1, 0}))
	require.NoError(t, idx.Add(ctx, 3, []float32{0.9, 0.1, 0}))

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.EqualValues(t, 1, matches[0].VectorID)
	assert.EqualValues(t, 3, matches[1].VectorID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	require.NoError(t, idx.Remove(ctx, 1))
	matches, err = idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, matches[0].VectorID)
}

func TestAddReplacesExistingID(t *testing.T) {
	idx, _ := newFlat(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 7, []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, 7, []float32{0, 1}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
}

func TestDimensionMismatchRejected(t *testing.T) {
	idx, _ := newFlat(t, 4)
	ctx := context.Background()

	assert.Error(t, idx.Add(ctx, 1, []float32{1, 2}))
	_, err := idx.Search(ctx, []float32{1}, 3)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	idx, path := newFlat(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 10, []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, 11, []float32{0, 1}))
	require.NoError(t, idx.Save(ctx))

	// No stray temp file after a successful save.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reloaded, err := OpenFlatIndex(path, 2, "cosine", logging.NewNoopLogger())
	require.NoError(t, err)
	ids, err := reloaded.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids)
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, []byte("not a gob snapshot"), 0o640))

	idx, err := OpenFlatIndex(path, 2, "cosine", logging.NewNoopLogger())
	require.NoError(t, err)
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDimensionChangeStartsFresh(t *testing.T) {
	idx, path := newFlat(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, 1, []float32{1, 0}))
	require.NoError(t, idx.Save(ctx))

	reloaded, err := OpenFlatIndex(path, 3, "cosine", logging.NewNoopLogger())
	require.NoError(t, err)
	n, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestL2MetricOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	idx, err := OpenFlatIndex(path, 2, "l2", logging.NewNoopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 1, []float32{0, 0}))
	require.NoError(t, idx.Add(ctx, 2, []float32{5, 5}))

	matches, err := idx.Search(ctx, []float32{0.1, 0.1}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, matches[0].VectorID)
}

func TestSearchTieBreaksOnID(t *testing.T) {
	idx, _ := newFlat(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, 5, []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, 3, []float32{1, 0}))

	matches, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, matches[0].VectorID)
	assert.EqualValues(t, 5, matches[1].VectorID)
}
