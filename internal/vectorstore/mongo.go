package vectorstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"elearning-platform/internal/rag"
	"elearning-platform/models"
)

// EmbeddingsCollection is the collection MongoStore writes to.
const EmbeddingsCollection = "material_embeddings"

// MongoStore keeps one document per chunk in material_embeddings. Scope
// filters match metadata fields as strings.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(EmbeddingsCollection)}
}

// EnsureIndexes creates the chunk_id uniqueness and source_id lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "source_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.subject_id", Value: 1}},
		},
	})
	return err
}

func (s *MongoStore) Put(ctx context.Context, chunk rag.Chunk, vector []float32, metadata map[string]any) error {
	update := bson.M{
		"$set": bson.M{
			"source_id":    chunk.SourceID,
			"text":         chunk.Text,
			"start_offset": chunk.StartOffset,
			"end_offset":   chunk.EndOffset,
			"vector":       vector,
			"dimension":    len(vector),
			"metadata":     metadata,
		},
		"$setOnInsert": bson.M{
			"created_at": time.Now(),
		},
	}

	_, err := s.collection.UpdateOne(ctx, bson.M{"chunk_id": chunk.ChunkID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return &rag.PersistenceError{Op: "put", ChunkID: chunk.ChunkID, Err: err}
	}
	return nil
}

func (s *MongoStore) QueryCandidates(ctx context.Context, scope *rag.Scope) ([]rag.EmbeddingRecord, error) {
	filter := bson.M{}
	if scope != nil && scope.Key != "" {
		filter["metadata."+scope.Key] = scope.Value
	}

	// ObjectIDs grow with insertion time, so _id order is insertion order.
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
	}
	defer cursor.Close(ctx)

	var out []rag.EmbeddingRecord
	for cursor.Next(ctx) {
		var doc models.MaterialEmbedding
		if err := cursor.Decode(&doc); err != nil {
			return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
		}
		out = append(out, rag.EmbeddingRecord{
			ChunkID:   doc.ChunkID,
			SourceID:  doc.SourceID,
			Text:      doc.Text,
			Vector:    doc.Vector,
			Dimension: doc.Dimension,
			Metadata:  doc.Metadata,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, &rag.PersistenceError{Op: "query candidates", Err: err}
	}
	return out, nil
}

func (s *MongoStore) DeleteSource(ctx context.Context, sourceID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"source_id": sourceID}); err != nil {
		return &rag.PersistenceError{Op: "delete", Err: err}
	}
	return nil
}

func (s *MongoStore) ListSources(ctx context.Context) ([]string, error) {
	values, err := s.collection.Distinct(ctx, "source_id", bson.M{})
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			sources = append(sources, id)
		}
	}
	return sources, nil
}

var (
	_ rag.VectorStore = (*MongoStore)(nil)
	_ SourceLister    = (*MongoStore)(nil)
)
