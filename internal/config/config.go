package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"elearning-platform/internal/rag"
)

type Config struct {
	MongoURI     string
	DBName       string
	Port         string
	GinMode      string
	LogLevel     string
	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string
	BcryptCost   int

	// Rate limiting (fixed window, per user or IP)
	RateLimitReqs   int
	RateLimitWindow int
	ChatRateLimit   int
	AIRateLimit     int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisCacheTTL int

	// JWT Token Secrets
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTier        string
	EmbeddingsModel   string
	DailyAITokenLimit int

	// Retrieval
	EmbeddingDimension  int
	SimilarityThreshold float64
	ChunkSize           int
	ChunkOverlap        int
	RAGFailureTolerance float64
	EmbedTimeout        time.Duration
	StoreTimeout        time.Duration
	QueryLimit          int
	MaxContextLength    int

	// Vector store backend: mongo, sqlite or memory
	VectorBackend string
	SQLiteDSN     string

	// Background work
	WorkerConcurrency  int
	ReconcileInterval  time.Duration
	AsyncIngestMinSize int

	// Telemetry
	ServiceName      string
	OTLPEndpoint     string
	TraceSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/elearning"),
		DBName:       getEnv("DB_NAME", "elearning"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		LogLevel:     getEnv("LOG_LEVEL", ""),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 20971520), // 20MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain"), ","),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 3600),
		ChatRateLimit:   getEnvInt("CHAT_RATE_LIMIT", 50),
		AIRateLimit:     getEnvInt("AI_RATE_LIMIT", 20),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisCacheTTL: getEnvInt("REDIS_CACHE_TTL", 300),

		AccessSecret:    getEnv("ACCESS_SECRET", ""),
		RefreshSecret:   getEnv("REFRESH_SECRET", ""),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:        getEnv("GEMINI_TIER", "free"),
		EmbeddingsModel:   getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		DailyAITokenLimit: getEnvInt("DAILY_AI_TOKEN_LIMIT", 50000),

		EmbeddingDimension:  getEnvInt("EMBEDDING_DIMENSION", 768),
		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", rag.DefaultSimilarityThreshold),
		ChunkSize:           getEnvInt("CHUNK_SIZE", rag.DefaultChunkSize),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", rag.DefaultChunkOverlap),
		RAGFailureTolerance: getEnvFloat64("RAG_FAILURE_TOLERANCE", rag.DefaultFailureTolerance),
		EmbedTimeout:        getEnvDuration("EMBED_TIMEOUT", 10*time.Second),
		StoreTimeout:        getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		QueryLimit:          getEnvInt("RAG_QUERY_LIMIT", rag.DefaultQueryLimit),
		MaxContextLength:    getEnvInt("RAG_MAX_CONTEXT_LENGTH", rag.DefaultMaxContextLength),

		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", "mongo")),
		SQLiteDSN:     getEnv("SQLITE_DSN", "file:./storage/vectors.db?_pragma=journal_mode(WAL)"),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 10),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 30*time.Minute),
		AsyncIngestMinSize: getEnvInt("ASYNC_INGEST_MIN_SIZE", 200000),

		ServiceName:      getEnv("OTEL_SERVICE_NAME", "elearning-platform"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvFloat64("OTEL_TRACE_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required secrets and the retrieval parameters.
// SharedVectorStore reports whether the configured vector store is visible to
// other processes. The memory backend and in-memory SQLite DSNs are private to
// the process that opened them.
func (c *Config) SharedVectorStore() bool {
	switch c.VectorBackend {
	case "memory":
		return false
	case "sqlite":
		dsn := strings.ToLower(c.SQLiteDSN)
		return !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory")
	}
	return true
}

func (c *Config) Validate() error {
	if len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32 {
		return fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET are required and must be at least 32 characters")
	}

	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	switch c.VectorBackend {
	case "mongo", "memory":
	case "sqlite":
		if c.SQLiteDSN == "" {
			return fmt.Errorf("SQLITE_DSN is required when VECTOR_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("VECTOR_BACKEND must be one of mongo, sqlite, memory (got %q)", c.VectorBackend)
	}

	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [-1, 1] (got %v)", c.SimilarityThreshold)
	}

	if err := c.RAG().Validate(); err != nil {
		return fmt.Errorf("invalid retrieval configuration: %w", err)
	}

	return nil
}

// RAG returns the pipeline settings derived from the environment.
func (c *Config) RAG() rag.Config {
	return rag.Config{
		EmbeddingDimension:  c.EmbeddingDimension,
		SimilarityThreshold: c.SimilarityThreshold,
		ChunkSize:           c.ChunkSize,
		ChunkOverlap:        c.ChunkOverlap,
		FailureTolerance:    c.RAGFailureTolerance,
		EmbedTimeout:        c.EmbedTimeout,
		StoreTimeout:        c.StoreTimeout,
		QueryLimit:          c.QueryLimit,
		MaxContextLength:    c.MaxContextLength,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
