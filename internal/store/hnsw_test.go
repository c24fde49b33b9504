package store

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(r *rand.Rand, n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = r.Float32()
		}
		out[i] = v
	}
	return out
}

func TestHNSWIndex_SmallIndexMatchesFlat(t *testing.T) {
	// Given: identical data in both backends, below the exact-search threshold
	r := rand.New(rand.NewSource(7))
	vectors := randomVectors(r, 40, 8)
	flat := NewFlatIndex(8)
	h := NewHNSWIndex(8, 0, 0)
	_, err := flat.Add(context.Background(), vectors)
	require.NoError(t, err)
	_, err = h.Add(context.Background(), vectors)
	require.NoError(t, err)

	// When/Then: every query returns the same hits
	for _, q := range randomVectors(r, 10, 8) {
		want, err := flat.Search(context.Background(), q, 5)
		require.NoError(t, err)
		got, err := h.Search(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestHNSWIndex_GraphSearchFindsExactMatch(t *testing.T) {
	// Given: more vectors than EfSearch so the graph is used
	r := rand.New(rand.NewSource(11))
	vectors := randomVectors(r, 300, 8)
	h := NewHNSWIndex(8, 16, 32)
	_, err := h.Add(context.Background(), vectors)
	require.NoError(t, err)

	// When: querying with a stored vector
	hits, err := h.Search(context.Background(), vectors[123], 3)
	require.NoError(t, err)

	// Then: it is the nearest hit and results are sorted
	require.NotEmpty(t, hits)
	assert.Equal(t, 123, hits[0].Slot)
	assert.Equal(t, float32(0), hits[0].Distance)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	r := rand.New(rand.NewSource(3))
	vectors := randomVectors(r, 100, 4)
	h := NewHNSWIndex(4, 8, 16)
	_, err := h.Add(context.Background(), vectors)
	require.NoError(t, err)
	require.NoError(t, h.Save(path))
	assert.FileExists(t, GraphPath(path))

	loaded := NewHNSWIndex(4, 8, 16)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 100, loaded.Size())
	hits, err := loaded.Search(context.Background(), vectors[42], 1)
	require.NoError(t, err)
	assert.Equal(t, 42, hits[0].Slot)
}

func TestHNSWIndex_LoadRebuildsMissingGraph(t *testing.T) {
	// Given: a saved index whose graph file was lost
	path := filepath.Join(t.TempDir(), "vectors.bin")
	r := rand.New(rand.NewSource(5))
	vectors := randomVectors(r, 80, 4)
	h := NewHNSWIndex(4, 8, 16)
	_, err := h.Add(context.Background(), vectors)
	require.NoError(t, err)
	require.NoError(t, h.Save(path))
	require.NoError(t, os.Remove(GraphPath(path)))

	// When: loading
	loaded := NewHNSWIndex(4, 8, 16)
	require.NoError(t, loaded.Load(path))

	// Then: the graph is rebuilt from the vectors
	hits, err := loaded.Search(context.Background(), vectors[7], 1)
	require.NoError(t, err)
	assert.Equal(t, 7, hits[0].Slot)
}

func TestHNSWIndex_Truncate(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	vectors := randomVectors(r, 120, 4)
	h := NewHNSWIndex(4, 8, 16)
	_, err := h.Add(context.Background(), vectors)
	require.NoError(t, err)

	require.NoError(t, h.Truncate(60))

	assert.Equal(t, 60, h.Size())
	hits, err := h.Search(context.Background(), vectors[100], 10)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.Less(t, hit.Slot, 60)
	}
}
