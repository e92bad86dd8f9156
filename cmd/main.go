package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/auth"
	"elearning-platform/internal/cache"
	"elearning-platform/internal/config"
	"elearning-platform/internal/logger"
	"elearning-platform/internal/queue"
	"elearning-platform/internal/rag"
	"elearning-platform/internal/scheduler"
	"elearning-platform/internal/telemetry"
	"elearning-platform/internal/vectorstore"
	"elearning-platform/middleware"
	"elearning-platform/routes"
	"elearning-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	appLogger := logger.InitLogger(cfg)
	ctx := context.Background()

	tracing := cfg.OTLPEndpoint != "" && cfg.TraceSampleRatio > 0
	if tracing {
		shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerOptions{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.OTLPEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
			Environment: cfg.GinMode,
		})
		if err != nil {
			appLogger.Warn("Tracing disabled", "error", err)
			tracing = false
		} else {
			defer shutdownTracer(context.Background())
		}
	}
	metrics, err := telemetry.InitMetrics(cfg.ServiceName)
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	tokens, err := auth.NewTokenService(cfg.AccessSecret, cfg.RefreshSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, auth.NewRedisJTIStore(rdb))
	if err != nil {
		log.Fatal("Failed to initialize token service:", err)
	}

	embedder, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel, cfg.GeminiTier, appLogger)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()
	embedder.SetMetrics(metrics)

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier, appLogger)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()
	gemini.SetMetrics(metrics)

	store, closeStore, err := vectorstore.Open(ctx, cfg.VectorBackend, cfg.SQLiteDSN, db)
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}
	defer closeStore()

	pipeline, err := rag.NewPipeline(embedder, store, cfg.RAG(), rag.WithLogger(appLogger))
	if err != nil {
		log.Fatal("Failed to build retrieval pipeline:", err)
	}
	contextCache := cache.NewContextCache(rdb, time.Duration(cfg.RedisCacheTTL)*time.Second)
	querier := cache.NewCachedQuerier(pipeline, contextCache, appLogger).WithMetrics(metrics)

	// Background ingestion needs a store the worker process can see.
	var enqueuer services.IngestEnqueuer
	if cfg.SharedVectorStore() {
		e := queue.NewEnqueuer(config.AsynqRedisOpt(cfg))
		defer e.Close()
		enqueuer = e
	} else {
		appLogger.Warn("Vector store is process-local, ingesting materials inline", "vector_backend", cfg.VectorBackend)
	}

	quota := ai.NewQuotaService(db, cfg.DailyAITokenLimit)
	materialRepo := services.NewMongoMaterialRepository(db)
	authService := services.NewAuthService(services.NewMongoUserRepository(db), tokens, cfg.BcryptCost)
	courseService := services.NewCourseService(db)
	exerciseService := services.NewExerciseService(db)
	materialService := services.NewMaterialService(services.MaterialServiceConfig{
		Repo:         materialRepo,
		Ingester:     pipeline,
		Querier:      querier,
		Enqueuer:     enqueuer,
		Invalidator:  contextCache,
		Metrics:      metrics,
		Logger:       appLogger,
		AsyncMinSize: cfg.AsyncIngestMinSize,
	})
	chatService := services.NewChatService(services.NewMongoChatRepository(db), querier, gemini, quota, metrics, cfg.GeminiModel, appLogger)
	quizService := services.NewQuizService(materialService, courseService, gemini, quota, metrics, cfg.GeminiModel)

	// Periodic cleanup of embeddings whose material is gone
	sched := scheduler.New(appLogger)
	reconciler := scheduler.NewReconciler(store, materialRepo, pipeline, appLogger)
	if err := sched.Every("reconcile-embeddings", cfg.ReconcileInterval, 5*time.Minute, reconciler.Job); err != nil {
		log.Fatal("Failed to schedule reconciliation:", err)
	}
	sched.Start()
	defer sched.Stop()

	router := routes.NewRouter(routes.Deps{
		Config:     cfg,
		Tokens:     tokens,
		Auth:       authService,
		Courses:    courseService,
		Exercises:  exerciseService,
		Materials:  materialService,
		Chat:       chatService,
		Quiz:       quizService,
		Quota:      quota,
		Reconciler: reconciler,
		Limiter:    middleware.NewRedisCounter(rdb),
		Metrics:    metrics,
		Tracing:    tracing,
		Health: map[string]routes.HealthCheck{
			"mongodb": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", "port", cfg.Port, "vector_backend", cfg.VectorBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}
