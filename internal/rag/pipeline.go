package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Pipeline wires chunking, embedding, storage and search together. All
// collaborators are injected; a Pipeline holds no mutable state and is safe
// for concurrent use as long as its collaborators are.
type Pipeline struct {
	embedder Embedder
	store    VectorStore
	searcher Searcher
	cfg      Config
	logger   *slog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSearcher replaces the default linear scan.
func WithSearcher(s Searcher) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.searcher = s
		}
	}
}

// WithLogger sets the logger used for skipped chunks and corrupt records.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline validates cfg and returns a ready pipeline.
func NewPipeline(embedder Embedder, store VectorStore, cfg Config, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, &ConfigurationError{Field: "embedder", Reason: "is nil"}
	}
	if store == nil {
		return nil, &ConfigurationError{Field: "vector_store", Reason: "is nil"}
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultCallTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultCallTimeout
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = DefaultQueryLimit
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		embedder: embedder,
		store:    store,
		searcher: LinearSearcher{},
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline settings.
func (p *Pipeline) Config() Config { return p.cfg }

// Ingest chunks, embeds and stores one document. Chunk-level failures are
// collected and skipped; if their share exceeds FailureTolerance the partial
// writes are deleted and an *IngestionFailedError is returned. A vector of
// the wrong dimension aborts the whole ingestion.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := otel.Tracer("rag").Start(ctx, "rag.ingest")
	defer span.End()

	if req.SourceID == "" {
		return nil, &ConfigurationError{Field: "source_id", Reason: "is empty"}
	}
	chunkSize, overlap, err := p.cfg.ResolveChunking(req.ChunkSize, req.Overlap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid chunking parameters")
		return nil, err
	}

	chunks, err := ChunkText(req.SourceID, req.DocumentText, chunkSize, overlap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid chunking parameters")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("rag.source_id", req.SourceID),
		attribute.Int("rag.chunks", len(chunks)),
	)

	result := &IngestResult{SourceID: req.SourceID, Total: len(chunks)}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			// Chunks written so far are left for the reconciliation pass.
			return nil, fmt.Errorf("rag: ingestion of %s cancelled: %w", req.SourceID, err)
		}

		vector, err := p.embed(ctx, chunk.ChunkID, chunk.Text)
		if err != nil {
			p.logger.Warn("Skipping chunk: embedding failed", "source_id", req.SourceID, "chunk_id", chunk.ChunkID, "error", err)
			result.Failures = append(result.Failures, ChunkFailure{ChunkID: chunk.ChunkID, Err: err})
			continue
		}
		if len(vector) != p.cfg.EmbeddingDimension {
			mismatch := &DimensionMismatchError{ChunkID: chunk.ChunkID, Want: p.cfg.EmbeddingDimension, Got: len(vector)}
			p.logger.Error("Embedding dimension mismatch during ingestion", "source_id", req.SourceID, "chunk_id", chunk.ChunkID, "want", mismatch.Want, "got", mismatch.Got)
			p.compensate(ctx, req.SourceID)
			span.RecordError(mismatch)
			span.SetStatus(codes.Error, "dimension mismatch")
			return nil, mismatch
		}

		if err := p.put(ctx, chunk, vector, chunkMetadata(req.Metadata, chunk)); err != nil {
			p.logger.Warn("Skipping chunk: store write failed", "source_id", req.SourceID, "chunk_id", chunk.ChunkID, "error", err)
			result.Failures = append(result.Failures, ChunkFailure{ChunkID: chunk.ChunkID, Err: err})
			continue
		}
		result.Stored++
	}

	span.SetAttributes(
		attribute.Int("rag.stored", result.Stored),
		attribute.Int("rag.failed", len(result.Failures)),
	)

	if len(chunks) > 0 && float64(len(result.Failures))/float64(len(chunks)) > p.cfg.FailureTolerance {
		failed := &IngestionFailedError{SourceID: req.SourceID, Total: len(chunks), Failures: result.Failures}
		failed.CleanupErr = p.compensate(ctx, req.SourceID)
		span.RecordError(failed)
		span.SetStatus(codes.Error, "too many chunk failures")
		return nil, failed
	}

	return result, nil
}

// Query embeds the question, ranks stored candidates and assembles the
// context. A failed embedding or candidate read is returned to the caller;
// no matches is a successful, empty result.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	ctx, span := otel.Tracer("rag").Start(ctx, "rag.query")
	defer span.End()

	limit := req.Limit
	if limit <= 0 {
		limit = p.cfg.QueryLimit
	}
	maxLength := req.MaxContextLength
	if maxLength <= 0 {
		maxLength = p.cfg.MaxContextLength
	}

	query, err := p.embed(ctx, "", req.QueryText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return nil, err
	}
	if len(query) != p.cfg.EmbeddingDimension {
		err := &DimensionMismatchError{ChunkID: "query", Want: p.cfg.EmbeddingDimension, Got: len(query)}
		span.RecordError(err)
		return nil, err
	}

	candidates, err := p.candidates(ctx, req.Scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate read failed")
		return nil, err
	}

	results := p.searcher.Search(query, candidates, p.cfg.SimilarityThreshold, limit)
	span.SetAttributes(
		attribute.Int("rag.candidates", len(candidates)),
		attribute.Int("rag.results", len(results)),
	)

	return &QueryResult{
		Context: Assemble(results, maxLength),
		Results: results,
	}, nil
}

// DeleteSource removes every stored chunk of a document.
func (p *Pipeline) DeleteSource(ctx context.Context, sourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if err := p.store.DeleteSource(ctx, sourceID); err != nil {
		return wrapPersistence("delete", "", err)
	}
	return nil
}

func (p *Pipeline) embed(ctx context.Context, chunkID, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		var unavailable *EmbeddingUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &EmbeddingUnavailableError{ChunkID: chunkID, Err: err}
	}
	return vector, nil
}

func (p *Pipeline) put(ctx context.Context, chunk Chunk, vector []float32, metadata map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if err := p.store.Put(ctx, chunk, vector, metadata); err != nil {
		return wrapPersistence("put", chunk.ChunkID, err)
	}
	return nil
}

// candidates reads the scoped records and drops any whose stored dimension
// disagrees with the configuration.
func (p *Pipeline) candidates(ctx context.Context, scope *Scope) ([]EmbeddingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()

	records, err := p.store.QueryCandidates(ctx, scope)
	if err != nil {
		return nil, wrapPersistence("query candidates", "", err)
	}

	valid := records[:0:0]
	for _, r := range records {
		if len(r.Vector) != p.cfg.EmbeddingDimension {
			p.logger.Error("Corrupt embedding record excluded from search",
				"error", &DimensionMismatchError{ChunkID: r.ChunkID, Want: p.cfg.EmbeddingDimension, Got: len(r.Vector)},
				"source_id", r.SourceID,
			)
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

// compensate deletes partial writes for a failed document. It never fails the
// caller; the error is logged and returned for reporting.
func (p *Pipeline) compensate(ctx context.Context, sourceID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()
	if err := p.store.DeleteSource(ctx, sourceID); err != nil {
		p.logger.Error("Failed to delete partial ingestion", "source_id", sourceID, "error", err)
		return wrapPersistence("delete", "", err)
	}
	return nil
}

func wrapPersistence(op, chunkID string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, ChunkID: chunkID, Err: err}
}

func chunkMetadata(base map[string]any, chunk Chunk) map[string]any {
	md := make(map[string]any, len(base)+3)
	maps.Copy(md, base)
	md["source_id"] = chunk.SourceID
	md["start_offset"] = chunk.StartOffset
	md["end_offset"] = chunk.EndOffset
	return md
}
