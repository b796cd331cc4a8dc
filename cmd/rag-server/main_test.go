package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/rag-retrieval/app"
	"github.com/upb/rag-retrieval/config"
	"github.com/upb/rag-retrieval/middleware"
	"github.com/upb/rag-retrieval/routes"
)

// rejectAllValidator rejects all tokens so write routes answer 401
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, assert.AnError
}

func TestMain(m *testing.M) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")

	os.Exit(m.Run())
}

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "invalid")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})
}

func minimalDeps(t *testing.T) *app.Dependencies {
	t.Helper()
	return &app.Dependencies{
		Config: testConfig(t),
		Logger: zaptest.NewLogger(t),
	}
}

func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data envelope: %v", body)
	return data
}

func TestHealthEndpoints(t *testing.T) {
	ts := httptest.NewServer(routes.SetupRoutes(minimalDeps(t)))
	defer ts.Close()

	t.Run("health check returns ok", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, "ok", decodeData(t, resp)["status"])
	})

	t.Run("not ready without infrastructure", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "not_ready", decodeData(t, resp)["status"])
	})
}

func TestWriteRoutesRequireAuth(t *testing.T) {
	deps := minimalDeps(t)
	deps.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, deps.Logger)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"upload document", http.MethodPost, "/api/v1/documents", http.StatusUnauthorized},
		{"delete document", http.MethodDelete, "/api/v1/documents/3f1c2f0e-6a7b-4d0e-9a53-0d8f7c1b2a10", http.StatusUnauthorized},
		{"update chunk", http.MethodPatch, "/api/v1/chunks/3f1c2f0e-6a7b-4d0e-9a53-0d8f7c1b2a10", http.StatusUnauthorized},
		{"delete chunk", http.MethodDelete, "/api/v1/chunks/3f1c2f0e-6a7b-4d0e-9a53-0d8f7c1b2a10", http.StatusUnauthorized},
		{"search rejects bad body before auth", http.MethodPost, "/api/v1/search", http.StatusBadRequest},
		{"invalid document id", http.MethodGet, "/api/v1/documents/not-a-uuid", http.StatusBadRequest},
		{"not found", http.MethodGet, "/api/v1/nonexistent", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader("{"))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	ts := httptest.NewServer(routes.SetupRoutes(minimalDeps(t)))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/search", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestIntegrationWithRealDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
		return
	}
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	data := decodeData(t, resp)
	t.Logf("readiness response: %+v", data)
	assert.Equal(t, "ready", data["status"])
}

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
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "rag"),
			Password:        getEnvOrDefault("DB_PASSWORD", "rag"),
			Database:        getEnvOrDefault("DB_NAME", "rag_test"),
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

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
