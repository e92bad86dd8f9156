package main

import (
	"context"
	"log"
	"time"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/cache"
	"elearning-platform/internal/config"
	"elearning-platform/internal/logger"
	"elearning-platform/internal/queue"
	"elearning-platform/internal/rag"
	"elearning-platform/internal/telemetry"
	"elearning-platform/internal/vectorstore"
	"elearning-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	appLogger := logger.InitLogger(cfg)
	ctx := context.Background()

	if !cfg.SharedVectorStore() {
		log.Fatalf("Worker needs a shared vector store, VECTOR_BACKEND=%s is process-local", cfg.VectorBackend)
	}

	metrics, err := telemetry.InitMetrics(cfg.ServiceName + "-worker")
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	embedder, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel, cfg.GeminiTier, appLogger)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()
	embedder.SetMetrics(metrics)

	store, closeStore, err := vectorstore.Open(ctx, cfg.VectorBackend, cfg.SQLiteDSN, db)
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}
	defer closeStore()

	pipeline, err := rag.NewPipeline(embedder, store, cfg.RAG(), rag.WithLogger(appLogger))
	if err != nil {
		log.Fatal("Failed to build retrieval pipeline:", err)
	}

	materialService := services.NewMaterialService(services.MaterialServiceConfig{
		Repo:        services.NewMongoMaterialRepository(db),
		Ingester:    pipeline,
		Querier:     pipeline,
		Invalidator: cache.NewContextCache(rdb, time.Duration(cfg.RedisCacheTTL)*time.Second),
		Metrics:     metrics,
		Logger:      appLogger,
	})

	redisOpt := config.AsynqRedisOpt(cfg)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:    cfg.WorkerConcurrency,
			Queues:         queue.Queues,
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				appLogger.Error("Task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)

	mux := queue.NewServeMux(queue.NewTaskProcessor(materialService, appLogger))

	appLogger.Info("Starting Asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"queues", queue.Queues,
		"redis", redisOpt.Addr,
		"vector_backend", cfg.VectorBackend,
	)

	// Run blocks until SIGTERM/SIGINT and then drains in-flight tasks
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
