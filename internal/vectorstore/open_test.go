package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning-platform/internal/rag"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, BackendMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, closeFn())

	store, closeFn, err = Open(ctx, BackendSQLite, filepath.Join(t.TempDir(), "v.db"), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = Open(ctx, BackendMongo, "", nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, _, err = Open(ctx, "pinecone", "", nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, _, err = Open(ctx, BackendSQLite, " ", nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}
