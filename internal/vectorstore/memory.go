// Package vectorstore holds the rag.VectorStore backends: MongoDB (the
// platform's document store), SQLite (relational deployments) and an
// in-memory store for tests and single-process setups.
package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"elearning-platform/internal/rag"
)

// SourceLister is implemented by stores that can enumerate their sources,
// which the orphan reconciliation job relies on.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// MemoryStore keeps records in insertion order. Re-putting an existing chunk
// replaces it in place.
type MemoryStore struct {
	mu      sync.RWMutex
	records []rag.EmbeddingRecord
	index   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (s *MemoryStore) Put(ctx context.Context, chunk rag.Chunk, vector []float32, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := rag.EmbeddingRecord{
		ChunkID:   chunk.ChunkID,
		SourceID:  chunk.SourceID,
		Text:      chunk.Text,
		Vector:    slices.Clone(vector),
		Dimension: len(vector),
		Metadata:  maps.Clone(metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[chunk.ChunkID]; ok {
		s.records[i] = rec
		return nil
	}
	s.index[chunk.ChunkID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) QueryCandidates(ctx context.Context, scope *rag.Scope) ([]rag.EmbeddingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rag.EmbeddingRecord, 0, len(s.records))
	for _, r := range s.records {
		if !matchesScope(r.Metadata, scope) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) DeleteSource(ctx context.Context, sourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.SourceID != sourceID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.index = make(map[string]int, len(kept))
	for i, r := range kept {
		s.index[r.ChunkID] = i
	}
	return nil
}

func (s *MemoryStore) ListSources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var sources []string
	for _, r := range s.records {
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		sources = append(sources, r.SourceID)
	}
	return sources, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matchesScope(metadata map[string]any, scope *rag.Scope) bool {
	if scope == nil || scope.Key == "" {
		return true
	}
	v, ok := metadata[scope.Key]
	return ok && fmt.Sprint(v) == scope.Value
}

var (
	_ rag.VectorStore = (*MemoryStore)(nil)
	_ SourceLister    = (*MemoryStore)(nil)
)
