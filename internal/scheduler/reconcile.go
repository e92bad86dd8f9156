package scheduler

import (
	"context"
	"fmt"
	"log/slog"
)

// SourceLister is satisfied by the vector stores.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// MaterialIDs lists the ids of stored materials.
type MaterialIDs interface {
	IDs(ctx context.Context) ([]string, error)
}

// SourceDeleter removes every embedding of a source.
type SourceDeleter interface {
	DeleteSource(ctx context.Context, sourceID string) error
}

// Reconciler removes embeddings whose material no longer exists, left
// behind when a delete failed between the store and the database.
type Reconciler struct {
	sources   SourceLister
	materials MaterialIDs
	deleter   SourceDeleter
	logger    *slog.Logger
}

func NewReconciler(sources SourceLister, materials MaterialIDs, deleter SourceDeleter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{sources: sources, materials: materials, deleter: deleter, logger: logger}
}

// Run deletes orphaned sources and returns how many were removed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	sources, err := r.sources.ListSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list embedding sources: %w", err)
	}
	if len(sources) == 0 {
		return 0, nil
	}
	ids, err := r.materials.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list materials: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	removed := 0
	for _, src := range sources {
		if _, ok := known[src]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := r.deleter.DeleteSource(ctx, src); err != nil {
			r.logger.Warn("Failed to delete orphaned embeddings", "source_id", src, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("Removed orphaned embeddings", "sources", removed)
	}
	return removed, nil
}

// Job adapts Run to Scheduler.Every.
func (r *Reconciler) Job(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}
