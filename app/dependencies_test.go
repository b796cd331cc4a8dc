package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/rag-retrieval/config"
	"github.com/upb/rag-retrieval/repositories/postgres"
	"github.com/upb/rag-retrieval/services/cache"
	"github.com/upb/rag-retrieval/services/providers"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadBytes:  1 << 20,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "rag",
			Password:        "rag",
			Database:        "rag_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Providers: config.ProvidersConfig{
			Default:     config.BackendPseudo,
			CallTimeout: 5 * time.Second,
			Dimension:   16,
			Models: map[string]config.TaskModels{
				config.BackendPseudo: {Embedding: "pseudo-sha256"},
				config.BackendOllama: {Embedding: "nomic-embed-text", Completion: "llama3.1"},
			},
		},
		Chunking: config.ChunkingConfig{MaxChunkSize: 500, Overlap: 50},
		Search: config.SearchConfig{
			TopK:            5,
			Threshold:       0.5,
			CacheTTL:        time.Hour,
			CacheBackend:    "memory",
			CacheMaxEntries: 100,
		},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
	}
}

func newTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	return postgres.NewDBFromConn(db, zaptest.NewLogger(t))
}

func TestNewDependenciesFromDB(t *testing.T) {
	t.Run("wires every service", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		deps, err := NewDependenciesFromDB(testConfig(t), newTestDB(t), logger)
		require.NoError(t, err)

		assert.NotNil(t, deps.Repositories.Documents)
		assert.NotNil(t, deps.Repositories.Chunks)
		assert.NotNil(t, deps.Repositories.Embeddings)
		assert.NotNil(t, deps.Repositories.Cache)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Gateway)
		assert.NotNil(t, deps.Embeddings)
		assert.NotNil(t, deps.Ingestion)
		assert.NotNil(t, deps.Retrieval)
		assert.IsType(t, &cache.Memory{}, deps.Cache)
		assert.Equal(t, providers.BackendPseudo, deps.Gateway.DefaultBackend())
		assert.False(t, deps.AuthMiddleware.Enabled())

		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("postgres cache backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Search.CacheBackend = "postgres"

		deps, err := NewDependenciesFromDB(cfg, newTestDB(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.IsType(t, &cache.Persistent{}, deps.Cache)
	})

	t.Run("jwt secret enables auth", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "s3cret"

		deps, err := NewDependenciesFromDB(cfg, newTestDB(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.True(t, deps.AuthMiddleware.Enabled())
	})

	t.Run("production requires a secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Environment = "production"
		cfg.Providers.Default = config.BackendOllama
		cfg.Providers.Ollama.ServerURL = "http://localhost:11434"

		_, err := NewDependenciesFromDB(cfg, newTestDB(t), zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
	})

	t.Run("default backend must be registered", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.Default = config.BackendOpenAI

		_, err := NewDependenciesFromDB(cfg, newTestDB(t), zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize backends")
	})
}

func TestNewBackendRegistry(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("pseudo only", func(t *testing.T) {
		cfg := testConfig(t)

		registry, err := NewBackendRegistry(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, []providers.BackendKind{providers.BackendPseudo}, registry.Kinds())
	})

	t.Run("all backends", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"
		cfg.Providers.Ollama.ServerURL = "http://localhost:11434"

		registry, err := NewBackendRegistry(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, 3, registry.Count())
	})
}

func TestBuildModelMap(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		models, err := BuildModelMap(testConfig(t).Providers)
		require.NoError(t, err)

		assert.Equal(t, "pseudo-sha256", models.Model(providers.BackendPseudo, providers.TaskEmbedding))
		assert.Equal(t, "llama3.1", models.Model(providers.BackendOllama, providers.TaskCompletion))
		assert.Empty(t, models.Model(providers.BackendPseudo, providers.TaskCompletion))
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t).Providers
		cfg.Models["anthropic"] = config.TaskModels{Embedding: "x"}

		_, err := BuildModelMap(cfg)
		assert.Error(t, err)
	})
}

func TestNewDependencies_DatabaseUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping connection attempt")
	}

	cfg := testConfig(t)
	cfg.Database.Host = "invalid-host-that-does-not-exist"

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}
