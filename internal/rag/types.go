// Package rag implements the retrieval side of the tutoring assistant:
// chunking course material, embedding and storing the chunks, and turning a
// learner's question into a bounded context string for prompt construction.
package rag

import (
	"context"
	"time"
)

const (
	DefaultChunkSize           = 500
	DefaultChunkOverlap        = 50
	DefaultSimilarityThreshold = 0.7
	DefaultQueryLimit          = 5
	DefaultMaxContextLength    = 2000
	DefaultFailureTolerance    = 0.5
	DefaultCallTimeout         = 5 * time.Second
)

// Chunk is a contiguous slice of a source document. Offsets are rune offsets
// into the original text; Text is the trimmed slice.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	SourceID    string `json:"source_id"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// EmbeddingRecord is a stored chunk vector as returned by a VectorStore.
type EmbeddingRecord struct {
	ChunkID   string         `json:"chunk_id"`
	SourceID  string         `json:"source_id"`
	Text      string         `json:"text"`
	Vector    []float32      `json:"vector"`
	Dimension int            `json:"dimension"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is computed per query and never persisted.
type SearchResult struct {
	ChunkID    string         `json:"chunk_id"`
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Scope restricts candidate retrieval to records whose metadata Key equals
// Value, e.g. {Key: "subject_id", Value: "MLN111"}.
type Scope struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists chunk vectors and serves candidates for search.
// Implementations own their concurrency control.
type VectorStore interface {
	Put(ctx context.Context, chunk Chunk, vector []float32, metadata map[string]any) error
	QueryCandidates(ctx context.Context, scope *Scope) ([]EmbeddingRecord, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

// Searcher ranks candidates against a query vector. The default is a linear
// cosine scan; an ANN index can satisfy the same contract.
type Searcher interface {
	Search(query []float32, candidates []EmbeddingRecord, threshold float64, limit int) []SearchResult
}

// Config holds the platform-wide retrieval settings.
type Config struct {
	EmbeddingDimension  int
	SimilarityThreshold float64
	ChunkSize           int
	ChunkOverlap        int
	// FailureTolerance is the fraction of chunks allowed to fail before a
	// whole ingestion is rolled back.
	FailureTolerance float64
	EmbedTimeout     time.Duration
	StoreTimeout     time.Duration
	// Defaults for queries that leave Limit or MaxContextLength unset.
	QueryLimit       int
	MaxContextLength int
}

// DefaultConfig returns the documented defaults for the given dimension.
func DefaultConfig(dimension int) Config {
	return Config{
		EmbeddingDimension:  dimension,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ChunkSize:           DefaultChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
		FailureTolerance:    DefaultFailureTolerance,
		EmbedTimeout:        DefaultCallTimeout,
		StoreTimeout:        DefaultCallTimeout,
		QueryLimit:          DefaultQueryLimit,
		MaxContextLength:    DefaultMaxContextLength,
	}
}

// Validate checks the settings that must hold before any ingestion runs.
func (c Config) Validate() error {
	if c.EmbeddingDimension <= 0 {
		return &ConfigurationError{Field: "embedding_dimension", Reason: "must be positive"}
	}
	if c.FailureTolerance < 0 || c.FailureTolerance > 1 {
		return &ConfigurationError{Field: "failure_tolerance", Reason: "must be within [0, 1]"}
	}
	return ValidateChunking(c.ChunkSize, c.ChunkOverlap)
}

// ResolveChunking fills unset chunking parameters from c and validates the
// result. Zero chunkSize means the configured size. overlap is used as given,
// zero included, unless both are zero, which selects the configured overlap.
func (c Config) ResolveChunking(chunkSize, overlap int) (int, int, error) {
	if chunkSize == 0 && overlap == 0 {
		chunkSize, overlap = c.ChunkSize, c.ChunkOverlap
	} else if chunkSize == 0 {
		chunkSize = c.ChunkSize
	}
	if err := ValidateChunking(chunkSize, overlap); err != nil {
		return 0, 0, err
	}
	return chunkSize, overlap, nil
}

// IngestRequest describes one document to chunk, embed and store. Unset
// chunking parameters are resolved with Config.ResolveChunking.
type IngestRequest struct {
	DocumentText string
	SourceID     string
	ChunkSize    int
	Overlap      int
	Metadata     map[string]any
}

// IngestResult reports how many chunks made it into the store.
type IngestResult struct {
	SourceID string         `json:"source_id"`
	Total    int            `json:"total"`
	Stored   int            `json:"stored"`
	Failures []ChunkFailure `json:"failures,omitempty"`
}

// QueryRequest describes one retrieval. Zero Limit/MaxContextLength fall
// back to defaults.
type QueryRequest struct {
	QueryText        string
	Scope            *Scope
	Limit            int
	MaxContextLength int
}

// QueryResult carries the assembled context plus the ranked results behind it.
// An empty Results slice is a successful "nothing relevant" answer.
type QueryResult struct {
	Context string         `json:"context"`
	Results []SearchResult `json:"results"`
}
