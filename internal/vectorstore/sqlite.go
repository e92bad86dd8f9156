package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"elearning-platform/internal/rag"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS material_embeddings (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id     TEXT NOT NULL UNIQUE,
	source_id    TEXT NOT NULL,
	text         TEXT NOT NULL,
	start_offset INTEGER NOT NULL DEFAULT 0,
	end_offset   INTEGER NOT NULL DEFAULT 0,
	dimension    INTEGER NOT NULL,
	vector       BLOB NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_material_embeddings_source ON material_embeddings(source_id);
`

// SQLiteStore persists embeddings in a single SQLite table. Candidates come
// back in insertion order (seq), which keeps similarity ties stable.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and ensures the schema.
// ":memory:" is accepted; the pool is pinned to one connection so every
// statement sees the same in-memory database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, &rag.ConfigurationError{Field: "sqlite_dsn", Reason: "is empty"}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing handle and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vectorstore: db is nil")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("vectorstore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Put(ctx context.Context, chunk rag.Chunk, vector []float32, metadata map[string]any) error {
	meta, err := json.Marshal(nonNilMetadata(metadata))
	if err != nil {
		return &rag.PersistenceError{Op: "put", ChunkID: chunk.ChunkID, Err: fmt.Errorf("encode metadata: %w", err)}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO material_embeddings(chunk_id, source_id, text, start_offset, end_offset, dimension, vector, metadata)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			source_id = excluded.source_id,
			text = excluded.text,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			dimension = excluded.dimension,
			vector = excluded.vector,
			metadata = excluded.metadata`,
		chunk.ChunkID, chunk.SourceID, chunk.Text, chunk.StartOffset, chunk.EndOffset,
		len(vector), encodeVector(vector), string(meta),
	)
	if err != nil {
		return &rag.PersistenceError{Op: "put", ChunkID: chunk.ChunkID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) QueryCandidates(ctx context.Context, scope *rag.Scope) ([]rag.EmbeddingRecord, error) {
	query := `SELECT chunk_id, source_id, text, vector, metadata FROM material_embeddings`
	var args []any
	if scope != nil && scope.Key != "" {
		query += ` WHERE CAST(json_extract(metadata, '$.' || ?) AS TEXT) = ?`
		args = append(args, scope.Key, scope.Value)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
	}
	defer rows.Close()

	var out []rag.EmbeddingRecord
	for rows.Next() {
		var (
			rec  rag.EmbeddingRecord
			blob []byte
			meta string
		)
		if err := rows.Scan(&rec.ChunkID, &rec.SourceID, &rec.Text, &blob, &meta); err != nil {
			return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
		}
		if rec.Vector, err = decodeVector(blob); err != nil {
			return nil, &rag.PersistenceError{Op: "query candidates", ChunkID: rec.ChunkID, Err: err}
		}
		rec.Dimension = len(rec.Vector)
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, &rag.PersistenceError{Op: "query candidates", ChunkID: rec.ChunkID, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, sourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM material_embeddings WHERE source_id = ?`, sourceID); err != nil {
		return &rag.PersistenceError{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM material_embeddings GROUP BY source_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sources = append(sources, id)
	}
	return sources, rows.Err()
}

func nonNilMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var (
	_ rag.VectorStore = (*SQLiteStore)(nil)
	_ SourceLister    = (*SQLiteStore)(nil)
)
