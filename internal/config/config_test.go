package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning-platform/internal/rag"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("REFRESH_SECRET", strings.Repeat("r", 32))
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.SimilarityThreshold)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.RAGFailureTolerance)
	assert.Equal(t, 300, cfg.RedisCacheTTL)
	assert.Equal(t, 100, cfg.RateLimitReqs)
	assert.Equal(t, 3600, cfg.RateLimitWindow)
	assert.Equal(t, "mongo", cfg.VectorBackend)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("EMBEDDING_DIMENSION", "384")
	t.Setenv("VECTOR_BACKEND", "SQLite")
	t.Setenv("EMBED_TIMEOUT", "30")
	t.Setenv("STORE_TIMEOUT", "1500ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	rc := cfg.RAG()
	assert.Equal(t, 800, rc.ChunkSize)
	assert.Equal(t, 100, rc.ChunkOverlap)
	assert.Equal(t, 384, rc.EmbeddingDimension)
	assert.Equal(t, 30*time.Second, rc.EmbedTimeout)
	assert.Equal(t, 1500*time.Millisecond, rc.StoreTimeout)
	assert.Equal(t, "sqlite", cfg.VectorBackend)
}

func TestLoadConfig_RejectsBadRetrievalSettings(t *testing.T) {
	cases := map[string][2]string{
		"overlap not smaller than size": {"CHUNK_OVERLAP", "500"},
		"zero dimension":                {"EMBEDDING_DIMENSION", "0"},
		"tolerance above one":           {"RAG_FAILURE_TOLERANCE", "1.2"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig()
			require.Error(t, err)
			assert.True(t, errors.Is(err, rag.ErrConfiguration))
		})
	}
}

func TestLoadConfig_RequiresSecrets(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "short")
	t.Setenv("REFRESH_SECRET", strings.Repeat("r", 32))
	t.Setenv("GEMINI_API_KEY", "k")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VECTOR_BACKEND", "pinecone")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "VECTOR_BACKEND")
}

func TestLoadConfig_ThresholdRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIMILARITY_THRESHOLD", "1.5")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "SIMILARITY_THRESHOLD")
}

func TestConfig_SharedVectorStore(t *testing.T) {
	tests := []struct {
		backend string
		dsn     string
		shared  bool
	}{
		{"mongo", "", true},
		{"memory", "", false},
		{"sqlite", "file:./storage/vectors.db?_pragma=journal_mode(WAL)", true},
		{"sqlite", ":memory:", false},
		{"sqlite", "file:vectors?mode=memory&cache=shared", false},
	}
	for _, tt := range tests {
		t.Run(tt.backend+" "+tt.dsn, func(t *testing.T) {
			cfg := &Config{VectorBackend: tt.backend, SQLiteDSN: tt.dsn}
			assert.Equal(t, tt.shared, cfg.SharedVectorStore())
		})
	}
}

func TestLoadConfig_MemoryBackendIsProcessLocal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VECTOR_BACKEND", "MEMORY")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.VectorBackend)
	assert.False(t, cfg.SharedVectorStore())
}
