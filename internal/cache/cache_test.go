package cache

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning-platform/internal/rag"
)

type countingQuerier struct {
	calls int
	res   *rag.QueryResult
	err   error
}

func (q *countingQuerier) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	q.calls++
	return q.res, q.err
}

type mapCache struct {
	entries map[string]*rag.QueryResult
	failGet bool
	failSet bool
}

func (m *mapCache) Get(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, bool, error) {
	if m.failGet {
		return nil, false, errors.New("redis down")
	}
	r, ok := m.entries[Key(req)]
	return r, ok, nil
}

func (m *mapCache) Set(ctx context.Context, req rag.QueryRequest, res *rag.QueryResult) error {
	if m.failSet {
		return errors.New("redis down")
	}
	m.entries[Key(req)] = res
	return nil
}

func sampleResult() *rag.QueryResult {
	return &rag.QueryResult{
		Context: "[Similarity: 0.90] Cells divide.",
		Results: []rag.SearchResult{{ChunkID: "bio_0", Text: "Cells divide.", Similarity: 0.9}},
	}
}

func TestCachedQuerier_HitSkipsPipeline(t *testing.T) {
	next := &countingQuerier{res: sampleResult()}
	q := NewCachedQuerier(next, &mapCache{entries: map[string]*rag.QueryResult{}}, nil)
	req := rag.QueryRequest{QueryText: "How do cells divide?"}

	first, err := q.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := q.Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
}

func TestCachedQuerier_FailsOpen(t *testing.T) {
	next := &countingQuerier{res: sampleResult()}
	q := NewCachedQuerier(next, &mapCache{entries: map[string]*rag.QueryResult{}, failGet: true, failSet: true}, nil)

	res, err := q.Query(context.Background(), rag.QueryRequest{QueryText: "q"})
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), res)
}

func TestCachedQuerier_ErrorsAndEmptyNotCached(t *testing.T) {
	mc := &mapCache{entries: map[string]*rag.QueryResult{}}
	next := &countingQuerier{err: &rag.EmbeddingUnavailableError{Err: errors.New("timeout")}}
	q := NewCachedQuerier(next, mc, nil)

	_, err := q.Query(context.Background(), rag.QueryRequest{QueryText: "q"})
	assert.ErrorIs(t, err, rag.ErrEmbeddingUnavailable)

	next.err = nil
	next.res = &rag.QueryResult{Results: []rag.SearchResult{}}
	_, err = q.Query(context.Background(), rag.QueryRequest{QueryText: "q"})
	require.NoError(t, err)
	assert.Empty(t, mc.entries)
}

func TestKey(t *testing.T) {
	base := rag.QueryRequest{QueryText: "What is  Demand?", Scope: &rag.Scope{Key: "subject_id", Value: "ECON"}}
	same := rag.QueryRequest{QueryText: "what is demand?", Scope: &rag.Scope{Key: "subject_id", Value: "ECON"}}
	other := rag.QueryRequest{QueryText: "what is demand?", Scope: &rag.Scope{Key: "subject_id", Value: "BIO"}}
	limited := rag.QueryRequest{QueryText: "what is demand?", Scope: &rag.Scope{Key: "subject_id", Value: "ECON"}, Limit: 2}

	assert.Equal(t, Key(base), Key(same))
	assert.NotEqual(t, Key(base), Key(other))
	assert.NotEqual(t, Key(base), Key(limited))
	assert.True(t, strings.HasPrefix(Key(base), keyPrefix))
}

func TestEncodeDecode(t *testing.T) {
	big := sampleResult()
	big.Context = strings.Repeat("[Similarity: 0.90] Cells divide. ", 100)

	for _, res := range []*rag.QueryResult{sampleResult(), big} {
		raw, err := encode(res)
		require.NoError(t, err)
		out, err := decode(raw)
		require.NoError(t, err)
		assert.Equal(t, res.Context, out.Context)
		assert.Equal(t, res.Results[0].ChunkID, out.Results[0].ChunkID)
	}

	_, err := decode([]byte("garbage"))
	assert.Error(t, err)
}

func TestContextCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set; skipping Redis integration test")
	}
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	c := NewContextCache(rdb, time.Minute)
	subject := "S-" + uuid.NewString()
	scoped := rag.QueryRequest{QueryText: uuid.NewString(), Scope: &rag.Scope{Key: "subject_id", Value: subject}}
	unscoped := rag.QueryRequest{QueryText: uuid.NewString()}

	require.NoError(t, c.Set(ctx, scoped, sampleResult()))
	require.NoError(t, c.Set(ctx, unscoped, sampleResult()))

	got, hit, err := c.Get(ctx, scoped)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "bio_0", got.Results[0].ChunkID)

	require.NoError(t, c.InvalidateScope(ctx, &rag.Scope{Key: "subject_id", Value: subject}))

	_, hit, err = c.Get(ctx, scoped)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.Get(ctx, unscoped)
	require.NoError(t, err)
	assert.False(t, hit, "unscoped entries are invalidated by any write")
}
