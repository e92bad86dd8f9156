package rag

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrConfiguration        = errors.New("rag: invalid configuration")
	ErrEmbeddingUnavailable = errors.New("rag: embedding unavailable")
	ErrPersistence          = errors.New("rag: persistence failure")
	ErrDimensionMismatch    = errors.New("rag: dimension mismatch")
	ErrIngestionFailed      = errors.New("rag: ingestion failed")
)

// ConfigurationError reports invalid chunking or pipeline parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rag: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// EmbeddingUnavailableError wraps a failed or timed out embedding call.
type EmbeddingUnavailableError struct {
	ChunkID string
	Err     error
}

func (e *EmbeddingUnavailableError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("rag: embedding unavailable: %v", e.Err)
	}
	return fmt.Sprintf("rag: embedding unavailable for chunk %s: %v", e.ChunkID, e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() []error { return []error{ErrEmbeddingUnavailable, e.Err} }

// PersistenceError wraps a vector store read or write failure.
type PersistenceError struct {
	Op      string
	ChunkID string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("rag: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rag: %s failed for chunk %s: %v", e.Op, e.ChunkID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// DimensionMismatchError reports a vector whose length disagrees with the
// configured embedding dimension.
type DimensionMismatchError struct {
	ChunkID string
	Want    int
	Got     int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("rag: chunk %s has dimension %d, want %d", e.ChunkID, e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// ChunkFailure records why a single chunk was skipped during ingestion.
type ChunkFailure struct {
	ChunkID string
	Err     error
}

func (f ChunkFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChunkID string `json:"chunk_id"`
		Kind    string `json:"kind"`
		Error   string `json:"error"`
	}{f.ChunkID, FailureKind(f.Err), f.Err.Error()})
}

// IngestionFailedError is returned when too many chunks of one document fail.
// Partial writes for the source have already been deleted on a best-effort basis.
type IngestionFailedError struct {
	SourceID string
	Total    int
	Failures []ChunkFailure
	// CleanupErr is set when the compensating delete itself failed.
	CleanupErr error
}

func (e *IngestionFailedError) Error() string {
	return fmt.Sprintf("rag: ingestion of %s failed: %d of %d chunks failed", e.SourceID, len(e.Failures), e.Total)
}

func (e *IngestionFailedError) Unwrap() error { return ErrIngestionFailed }

// FailureKind classifies an error into the taxonomy names used in API
// responses and logs.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrIngestionFailed):
		return "ingestion_failed"
	default:
		return "internal_error"
	}
}
