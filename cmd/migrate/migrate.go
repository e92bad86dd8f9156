package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/config"
	"elearning-platform/internal/logger"
	"elearning-platform/internal/rag"
	"elearning-platform/internal/scheduler"
	"elearning-platform/internal/vectorstore"
	"elearning-platform/services"

	"go.mongodb.org/mongo-driver/mongo"
)

func usage() {
	fmt.Println("Usage: go run ./cmd/migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  create-indexes  - Create MongoDB and vector store indexes")
	fmt.Println("  reindex         - Re-chunk and re-embed every material")
	fmt.Println("  reconcile       - Remove embeddings whose material no longer exists")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger := logger.InitLogger(cfg)
	ctx := context.Background()

	// ConnectMongoDB also creates the collection indexes
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.DBName)

	store, closeStore, err := vectorstore.Open(ctx, cfg.VectorBackend, cfg.SQLiteDSN, db)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer closeStore()

	switch command {
	case "create-indexes":
		fmt.Printf("Indexes ready (vector backend: %s)\n", cfg.VectorBackend)

	case "reindex":
		embedder, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel, cfg.GeminiTier, appLogger)
		if err != nil {
			log.Fatalf("Failed to initialize embedder: %v", err)
		}
		defer embedder.Close()
		pipeline, err := rag.NewPipeline(embedder, store, cfg.RAG(), rag.WithLogger(appLogger))
		if err != nil {
			log.Fatalf("Failed to build retrieval pipeline: %v", err)
		}
		if err := reindex(ctx, db, pipeline); err != nil {
			log.Fatalf("Reindex failed: %v", err)
		}

	case "reconcile":
		reconciler := scheduler.NewReconciler(store, services.NewMongoMaterialRepository(db), store, appLogger)
		removed, err := reconciler.Run(ctx)
		if err != nil {
			log.Fatalf("Reconciliation failed: %v", err)
		}
		fmt.Printf("Removed embeddings of %d orphaned sources\n", removed)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

// reindex re-runs ingestion for every material, one at a time. Failures are
// reported and do not stop the run.
func reindex(ctx context.Context, db *mongo.Database, pipeline *rag.Pipeline) error {
	repo := services.NewMongoMaterialRepository(db)
	materials := services.NewMaterialService(services.MaterialServiceConfig{
		Repo:     repo,
		Ingester: pipeline,
		Querier:  pipeline,
	})

	ids, err := repo.IDs(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d materials to reindex\n", len(ids))

	failed := 0
	for _, id := range ids {
		result, err := materials.Process(ctx, id, 0, 0)
		if err != nil {
			failed++
			fmt.Printf("  %s: failed: %v\n", id, err)
			continue
		}
		fmt.Printf("  %s: %d/%d chunks stored\n", id, result.Stored, result.Total)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d materials failed", failed, len(ids))
	}
	fmt.Println("Reindex completed successfully!")
	return nil
}
