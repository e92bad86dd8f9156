package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning-platform/internal/rag"
	"elearning-platform/internal/vectorstore"
	"elearning-platform/models"
)

type materialFixture struct {
	svc         *MaterialService
	repo        *memMaterialRepo
	store       *vectorstore.MemoryStore
	enqueuer    *fakeEnqueuer
	invalidator *recordingInvalidator
	embedder    *topicEmbedder
}

func newMaterialFixture(t *testing.T, asyncMinSize int) *materialFixture {
	t.Helper()
	f := &materialFixture{
		repo:        newMemMaterialRepo(),
		store:       vectorstore.NewMemoryStore(),
		enqueuer:    &fakeEnqueuer{},
		invalidator: &recordingInvalidator{},
		embedder:    &topicEmbedder{},
	}
	pipeline, err := rag.NewPipeline(f.embedder, f.store, testRAGConfig())
	require.NoError(t, err)
	f.svc = NewMaterialService(MaterialServiceConfig{
		Repo:         f.repo,
		Ingester:     pipeline,
		Querier:      pipeline,
		Enqueuer:     f.enqueuer,
		Invalidator:  f.invalidator,
		AsyncMinSize: asyncMinSize,
	})
	return f
}

const biologyNotes = "Photosynthesis turns light into chemical energy. " +
	"Photosynthesis happens in the chloroplast of plant cells. " +
	"The products of photosynthesis are glucose and oxygen."

func upload(subject, content string) MaterialUpload {
	return MaterialUpload{
		Request:     models.CreateMaterialRequest{Title: "Notes", SubjectID: subject},
		Content:     content,
		ContentType: "text/plain",
	}
}

func TestMaterialService_CreateIngestsInline(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()

	resp, err := f.svc.Create(ctx, "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, resp.Material.Status)
	assert.Positive(t, resp.Stored)
	assert.Equal(t, resp.Stored, resp.Material.StoredChunks)
	assert.Equal(t, resp.Stored, f.store.Len())
	assert.Empty(t, f.enqueuer.calls)

	require.Len(t, f.invalidator.scopes, 1)
	assert.Equal(t, "BIO101", f.invalidator.scopes[0].Value)

	records, err := f.store.QueryCandidates(ctx, &rag.Scope{Key: ScopeKey, Value: "BIO101"})
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, resp.Material.ID.Hex(), records[0].Metadata["material_id"])
}

func TestMaterialService_CreateRejectsEmptyContent(t *testing.T) {
	f := newMaterialFixture(t, 0)

	_, err := f.svc.Create(context.Background(), "instructor-1", upload("BIO101", "   \n "))
	assert.ErrorIs(t, err, ErrEmptyMaterial)
	ids, _ := f.repo.IDs(context.Background())
	assert.Empty(t, ids)
}

func TestMaterialService_CreateRejectsBadChunking(t *testing.T) {
	f := newMaterialFixture(t, 0)
	up := upload("BIO101", biologyNotes)
	up.Request.ChunkSize = 10
	up.Request.Overlap = 10

	_, err := f.svc.Create(context.Background(), "instructor-1", up)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	ids, _ := f.repo.IDs(context.Background())
	assert.Empty(t, ids)
}

func TestMaterialService_CreateKeepsZeroOverlap(t *testing.T) {
	f := newMaterialFixture(t, 0)
	up := upload("BIO101", biologyNotes)
	// below the configured overlap of 10
	up.Request.ChunkSize = 8

	resp, err := f.svc.Create(context.Background(), "instructor-1", up)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resp.Material.Status)
	assert.Equal(t, 8, resp.Material.ChunkSize)
	assert.Equal(t, 0, resp.Material.ChunkOverlap)
	assert.Positive(t, resp.Stored)
}

func TestMaterialService_CreateRecordsDefaultChunking(t *testing.T) {
	f := newMaterialFixture(t, 0)

	resp, err := f.svc.Create(context.Background(), "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	assert.Equal(t, 60, resp.Material.ChunkSize)
	assert.Equal(t, 10, resp.Material.ChunkOverlap)
}

func TestMaterialService_AsyncQueuesTask(t *testing.T) {
	f := newMaterialFixture(t, 0)
	up := upload("BIO101", biologyNotes)
	up.Request.Async = true

	resp, err := f.svc.Create(context.Background(), "instructor-1", up)
	require.NoError(t, err)

	id := resp.Material.ID.Hex()
	assert.Equal(t, []string{id}, f.enqueuer.calls)
	assert.Equal(t, [][2]int{{60, 10}}, f.enqueuer.chunking)
	assert.Equal(t, "task-"+id, resp.TaskID)
	assert.Equal(t, models.StatusPending, resp.Material.Status)
	assert.Zero(t, f.store.Len())

	stored, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "task-"+id, stored.TaskID)
}

func TestMaterialService_LargeUploadGoesAsync(t *testing.T) {
	f := newMaterialFixture(t, 50)

	resp, err := f.svc.Create(context.Background(), "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TaskID)
}

func TestMaterialService_EnqueueFailureFallsBackInline(t *testing.T) {
	f := newMaterialFixture(t, 0)
	f.enqueuer.err = errors.New("redis down")
	up := upload("BIO101", biologyNotes)
	up.Request.Async = true

	resp, err := f.svc.Create(context.Background(), "instructor-1", up)
	require.NoError(t, err)
	assert.Empty(t, resp.TaskID)
	assert.Equal(t, models.StatusCompleted, resp.Material.Status)
}

func TestMaterialService_FailedIngestionMarksMaterial(t *testing.T) {
	f := newMaterialFixture(t, 0)
	f.embedder.fail = true

	resp, err := f.svc.Create(context.Background(), "instructor-1", upload("BIO101", biologyNotes))
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrIngestionFailed)
	require.NotNil(t, resp)
	assert.Equal(t, models.StatusFailed, resp.Material.Status)
	assert.NotEmpty(t, resp.Material.ErrorMessage)
	assert.Zero(t, f.store.Len())
}

func TestMaterialService_ProcessIsRepeatable(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	up := upload("BIO101", biologyNotes)
	up.Request.Async = true
	resp, err := f.svc.Create(ctx, "instructor-1", up)
	require.NoError(t, err)
	id := resp.Material.ID.Hex()

	first, err := f.svc.Process(ctx, id, 0, 0)
	require.NoError(t, err)
	n := f.store.Len()
	second, err := f.svc.Process(ctx, id, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, first.Stored, second.Stored)
	assert.Equal(t, n, f.store.Len())
}

func TestMaterialService_ReprocessDropsStaleChunks(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	up := upload("BIO101", biologyNotes)
	up.Request.ChunkSize = 40
	up.Request.Overlap = 5
	resp, err := f.svc.Create(ctx, "instructor-1", up)
	require.NoError(t, err)
	small := f.store.Len()

	result, err := f.svc.Process(ctx, resp.Material.ID.Hex(), 500, 50)
	require.NoError(t, err)
	assert.Less(t, result.Stored, small)
	assert.Equal(t, result.Stored, f.store.Len())
}

func TestMaterialService_ProcessReusesStoredChunking(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	up := upload("BIO101", biologyNotes)
	up.Request.ChunkSize = 40
	up.Request.Overlap = 5
	resp, err := f.svc.Create(ctx, "instructor-1", up)
	require.NoError(t, err)

	result, err := f.svc.Process(ctx, resp.Material.ID.Hex(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, resp.Stored, result.Stored)

	stored, err := f.repo.Get(ctx, resp.Material.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 40, stored.ChunkSize)
	assert.Equal(t, 5, stored.ChunkOverlap)
}

func TestMaterialService_ProcessRejectsBadChunkingWithoutSideEffects(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	n := f.store.Len()

	_, err = f.svc.Process(ctx, resp.Material.ID.Hex(), 20, 30)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	stored, err := f.repo.Get(ctx, resp.Material.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, n, f.store.Len())
}

// brokenDeleteIngester fails every DeleteSource call.
type brokenDeleteIngester struct {
	*rag.Pipeline
}

func (brokenDeleteIngester) DeleteSource(context.Context, string) error {
	return &rag.PersistenceError{Op: "delete source", Err: errors.New("connection reset")}
}

func TestMaterialService_StaleDeleteFailureMarksFailed(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	id := resp.Material.ID.Hex()

	pipeline, err := rag.NewPipeline(f.embedder, f.store, testRAGConfig())
	require.NoError(t, err)
	svc := NewMaterialService(MaterialServiceConfig{
		Repo:        f.repo,
		Ingester:    brokenDeleteIngester{pipeline},
		Querier:     pipeline,
		Invalidator: f.invalidator,
	})

	_, err = svc.Process(ctx, id, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrPersistence)

	stored, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "connection reset")
}

func TestMaterialService_FailedReingestInvalidatesCache(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	id := resp.Material.ID.Hex()
	require.Len(t, f.invalidator.scopes, 1)

	f.embedder.fail = true
	_, err = f.svc.Process(ctx, id, 0, 0)
	assert.ErrorIs(t, err, rag.ErrIngestionFailed)

	stored, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Zero(t, stored.StoredChunks)
	assert.Zero(t, f.store.Len())
	require.Len(t, f.invalidator.scopes, 2)
	assert.Equal(t, "BIO101", f.invalidator.scopes[1].Value)
}

func TestMaterialService_DeleteCascades(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	resp, err := f.svc.Create(ctx, "instructor-1", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	id := resp.Material.ID.Hex()

	require.NoError(t, f.svc.Delete(ctx, id))

	assert.Zero(t, f.store.Len())
	_, err = f.repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.invalidator.scopes, 2)
}

func TestMaterialService_DeleteUnknown(t *testing.T) {
	f := newMaterialFixture(t, 0)
	err := f.svc.Delete(context.Background(), "64b7f0c2a1b2c3d4e5f60718")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaterialService_SearchScopesBySubject(t *testing.T) {
	f := newMaterialFixture(t, 0)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "t", upload("BIO101", biologyNotes))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "t", upload("HIS201", "The revolution of 1789 reshaped France. The revolution ended the monarchy."))
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, models.SearchRequest{Query: "explain photosynthesis", SubjectID: "HIS201"})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Context)

	res, err = f.svc.Search(ctx, models.SearchRequest{Query: "explain photosynthesis", SubjectID: "BIO101"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.True(t, strings.Contains(strings.ToLower(res.Context), "photosynthesis"))

	res, err = f.svc.Search(ctx, models.SearchRequest{Query: "what was the revolution"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "HIS201", res.Results[0].Metadata[ScopeKey])
}
