package vectorstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"elearning-platform/internal/rag"
)

const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store is what the API and worker need from a backend: the rag.VectorStore
// operations plus source enumeration for reconciliation.
type Store interface {
	rag.VectorStore
	SourceLister
}

// Open returns the store for backend along with a func releasing it. db is
// only used by the mongo backend.
func Open(ctx context.Context, backend, sqliteDSN string, db *mongo.Database) (Store, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case BackendMongo, "":
		if db == nil {
			return nil, nil, &rag.ConfigurationError{Field: "vector_backend", Reason: "mongo backend needs a database"}
		}
		store := NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("vectorstore: ensure indexes: %w", err)
		}
		return store, noop, nil
	case BackendSQLite:
		store, err := OpenSQLite(sqliteDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, nil, &rag.ConfigurationError{Field: "vector_backend", Reason: fmt.Sprintf("unknown backend %q", backend)}
	}
}
