package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := CreateIndexes(ctx, client.Database(cfg.DBName)); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// collectionIndexes lists the secondary indexes of every platform collection.
// material_embeddings is indexed by vectorstore.MongoStore itself.
var collectionIndexes = map[string][]mongo.IndexModel{
	"users": {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}}},
	},
	"courses": {
		{Keys: bson.D{{Key: "subject_code", Value: 1}}},
		{Keys: bson.D{{Key: "instructor_id", Value: 1}}},
	},
	"lessons": {
		{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "order", Value: 1}}},
	},
	"exercises": {
		{Keys: bson.D{{Key: "course_id", Value: 1}}},
		{Keys: bson.D{{Key: "lesson_id", Value: 1}}},
	},
	"exercise_submissions": {
		{Keys: bson.D{{Key: "exercise_id", Value: 1}, {Key: "student_id", Value: 1}}},
		{Keys: bson.D{{Key: "submitted_at", Value: -1}}},
	},
	"enrollments": {
		{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	"materials": {
		{Keys: bson.D{{Key: "subject_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	},
	"chat_sessions": {
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	},
	"chat_messages": {
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	},
	"ai_quotas": {
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// CreateIndexes creates the platform indexes. It is idempotent.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	for name, indexes := range collectionIndexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
