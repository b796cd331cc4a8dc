package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by PROVIDER_DEFAULT
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	BackendPseudo = "pseudo"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Chunking      ChunkingConfig
	Search        SearchConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig selects the default embedding/completion backend and configures each one
type ProvidersConfig struct {
	Default           string
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
	Dimension         int
	OpenAI            OpenAIConfig
	Ollama            OllamaConfig
	ModelsFile        string
	Models            map[string]TaskModels
}

// TaskModels maps each logical task to the model requested from a backend
type TaskModels struct {
	Embedding  string `yaml:"embedding"`
	Completion string `yaml:"completion"`
}

// OpenAIConfig holds OpenAI-compatible backend configuration
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	MaxRetries int
	RetryDelay time.Duration
}

// OllamaConfig holds Ollama backend configuration
type OllamaConfig struct {
	ServerURL string
}

// ChunkingConfig controls the document chunker
type ChunkingConfig struct {
	MaxChunkSize int
	Overlap      int
}

// SearchConfig holds ranking defaults and response cache settings
type SearchConfig struct {
	TopK                 int
	Threshold            float64
	CacheTTL             time.Duration
	CacheBackend         string // memory or postgres
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
}

// AuthConfig holds bearer-token settings for write routes
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

type modelsFile struct {
	Models map[string]TaskModels `yaml:"models"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxUploadBytes:  int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 20<<20)),
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			Default:           strings.ToLower(getEnv("PROVIDER_DEFAULT", BackendPseudo)),
			CallTimeout:       getEnvAsDuration("PROVIDER_CALL_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_REQUESTS_PER_SECOND", 10),
			Burst:             getEnvAsInt("PROVIDER_BURST", 20),
			Dimension:         getEnvAsInt("PROVIDER_PSEUDO_DIMENSION", 768),
			OpenAI: OpenAIConfig{
				APIKey:     getEnv("OPENAI_API_KEY", ""),
				BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				OrgID:      getEnv("OPENAI_ORG_ID", ""),
				MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 2),
				RetryDelay: getEnvAsDuration("OPENAI_RETRY_DELAY", 500*time.Millisecond),
			},
			Ollama: OllamaConfig{
				ServerURL: getEnv("OLLAMA_SERVER_URL", "http://localhost:11434"),
			},
			ModelsFile: getEnv("PROVIDER_MODELS_FILE", ""),
			Models: map[string]TaskModels{
				BackendOpenAI: {
					Embedding:  getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
					Completion: getEnv("OPENAI_COMPLETION_MODEL", "gpt-4o-mini"),
				},
				BackendOllama: {
					Embedding:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
					Completion: getEnv("OLLAMA_COMPLETION_MODEL", "llama3.1"),
				},
				BackendPseudo: {
					Embedding: "pseudo-sha256",
				},
			},
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: getEnvAsInt("CHUNK_MAX_SIZE", 1000),
			Overlap:      getEnvAsInt("CHUNK_OVERLAP", 200),
		},
		Search: SearchConfig{
			TopK:                 getEnvAsInt("SEARCH_TOP_K", 5),
			Threshold:            getEnvAsFloat("SEARCH_THRESHOLD", 0.5),
			CacheTTL:             getEnvAsDuration("CACHE_TTL", time.Hour),
			CacheBackend:         strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			CacheMaxEntries:      getEnvAsInt("CACHE_MAX_ENTRIES", 1000),
			CacheCleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Providers.ModelsFile != "" {
		if err := cfg.Providers.loadModelsFile(cfg.Providers.ModelsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadModelsFile overlays per-backend task models from a YAML file.
// Empty entries in the file keep the environment defaults.
func (p *ProvidersConfig) loadModelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}

	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse models file: %w", err)
	}

	for backend, models := range file.Models {
		backend = strings.ToLower(backend)
		current := p.Models[backend]
		if models.Embedding != "" {
			current.Embedding = models.Embedding
		}
		if models.Completion != "" {
			current.Completion = models.Completion
		}
		p.Models[backend] = current
	}
	return nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	switch c.Providers.Default {
	case BackendOpenAI:
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when the default backend is openai")
		}
	case BackendOllama:
		if c.Providers.Ollama.ServerURL == "" {
			return fmt.Errorf("OLLAMA_SERVER_URL is required when the default backend is ollama")
		}
	case BackendPseudo:
		if c.IsProduction() {
			return fmt.Errorf("pseudo embeddings are not allowed in production")
		}
	default:
		return fmt.Errorf("unknown default backend %q", c.Providers.Default)
	}
	if c.Providers.Models[c.Providers.Default].Embedding == "" {
		return fmt.Errorf("no embedding model configured for backend %q", c.Providers.Default)
	}
	if c.Providers.CallTimeout <= 0 {
		return fmt.Errorf("provider call timeout must be positive")
	}
	if c.Providers.Dimension <= 0 {
		return fmt.Errorf("pseudo embedding dimension must be positive")
	}

	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunk max size must be positive")
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative")
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search top-k must be positive")
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return fmt.Errorf("search threshold must be within [-1, 1]")
	}
	if c.Search.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Search.CacheBackend != "memory" && c.Search.CacheBackend != "postgres" {
		return fmt.Errorf("unknown cache backend %q", c.Search.CacheBackend)
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "rag")
	pool.Password = getEnv("DB_PASSWORD", "rag")
	pool.Database = getEnv("DB_NAME", "rag")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
