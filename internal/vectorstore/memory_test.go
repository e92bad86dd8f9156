package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning-platform/internal/rag"
)

func chunk(source string, i int, text string) rag.Chunk {
	return rag.Chunk{ChunkID: source + "_" + string(rune('0'+i)), SourceID: source, Text: text}
}

// runStoreContract checks the behaviour every backend must share.
func runStoreContract(t *testing.T, store interface {
	rag.VectorStore
	SourceLister
}) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, chunk("econ", 0, "supply"), []float32{1, 0}, map[string]any{"subject_id": "ECON101"}))
	require.NoError(t, store.Put(ctx, chunk("econ", 1, "demand"), []float32{0, 1}, map[string]any{"subject_id": "ECON101"}))
	require.NoError(t, store.Put(ctx, chunk("bio", 0, "cells"), []float32{0.5, 0.5}, map[string]any{"subject_id": "BIO200"}))

	all, err := store.QueryCandidates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"econ_0", "econ_1", "bio_0"}, []string{all[0].ChunkID, all[1].ChunkID, all[2].ChunkID})
	assert.Equal(t, []float32{1, 0}, all[0].Vector)
	assert.Equal(t, 2, all[0].Dimension)

	scoped, err := store.QueryCandidates(ctx, &rag.Scope{Key: "subject_id", Value: "BIO200"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "cells", scoped[0].Text)

	none, err := store.QueryCandidates(ctx, &rag.Scope{Key: "subject_id", Value: "MATH"})
	require.NoError(t, err)
	assert.Empty(t, none)

	// Re-putting a chunk replaces it without changing its position.
	require.NoError(t, store.Put(ctx, chunk("econ", 0, "supply curve"), []float32{0.9, 0.1}, map[string]any{"subject_id": "ECON101"}))
	all, err = store.QueryCandidates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "econ_0", all[0].ChunkID)
	assert.Equal(t, "supply curve", all[0].Text)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"econ", "bio"}, sources)

	require.NoError(t, store.DeleteSource(ctx, "econ"))
	all, err = store.QueryCandidates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bio_0", all[0].ChunkID)

	require.NoError(t, store.DeleteSource(ctx, "missing"))
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesInputs(t *testing.T) {
	store := NewMemoryStore()
	vec := []float32{1, 2}
	md := map[string]any{"k": "v"}
	require.NoError(t, store.Put(context.Background(), chunk("s", 0, "t"), vec, md))

	vec[0] = 99
	md["k"] = "changed"

	recs, err := store.QueryCandidates(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1), recs[0].Vector[0])
	assert.Equal(t, "v", recs[0].Metadata["k"])
}

func TestMemoryStore_ScopeMatchesNonStringValues(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), chunk("s", 0, "t"), []float32{1}, map[string]any{"grade": 10}))

	recs, err := store.QueryCandidates(context.Background(), &rag.Scope{Key: "grade", Value: "10"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.Error(t, store.Put(ctx, chunk("s", 0, "t"), []float32{1}, nil))
	_, err := store.QueryCandidates(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}
