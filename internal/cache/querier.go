package cache

import (
	"context"
	"log/slog"

	"elearning-platform/internal/rag"
	"elearning-platform/internal/telemetry"
)

// Querier is the read side of the retrieval pipeline.
type Querier interface {
	Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error)
}

// ResultCache is satisfied by *ContextCache.
type ResultCache interface {
	Get(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, bool, error)
	Set(ctx context.Context, req rag.QueryRequest, res *rag.QueryResult) error
}

// CachedQuerier serves repeated queries from the cache. Cache failures are
// logged and bypassed; only the wrapped querier can fail a request.
type CachedQuerier struct {
	next    Querier
	cache   ResultCache
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewCachedQuerier(next Querier, cache ResultCache, logger *slog.Logger) *CachedQuerier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedQuerier{next: next, cache: cache, logger: logger}
}

// WithMetrics records hit/miss counts on m.
func (q *CachedQuerier) WithMetrics(m *telemetry.Metrics) *CachedQuerier {
	q.metrics = m
	return q
}

func (q *CachedQuerier) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	res, hit, err := q.cache.Get(ctx, req)
	if err != nil {
		q.logger.Warn("Context cache read failed", "error", err)
	}
	q.metrics.RecordCacheLookup(ctx, hit)
	if hit {
		return res, nil
	}

	res, err = q.next.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	// Empty answers are not cached so new material shows up immediately.
	if len(res.Results) > 0 {
		if err := q.cache.Set(ctx, req, res); err != nil {
			q.logger.Warn("Context cache write failed", "error", err)
		}
	}
	return res, nil
}
