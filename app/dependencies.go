package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/config"
	"github.com/upb/rag-retrieval/middleware"
	"github.com/upb/rag-retrieval/repositories"
	"github.com/upb/rag-retrieval/repositories/postgres"
	"github.com/upb/rag-retrieval/services/cache"
	"github.com/upb/rag-retrieval/services/chunker"
	"github.com/upb/rag-retrieval/services/embedding"
	"github.com/upb/rag-retrieval/services/ingestion"
	"github.com/upb/rag-retrieval/services/providers"
	"github.com/upb/rag-retrieval/services/providers/ollama"
	"github.com/upb/rag-retrieval/services/providers/openai"
	"github.com/upb/rag-retrieval/services/providers/pseudo"
	"github.com/upb/rag-retrieval/services/retrieval"
	"github.com/upb/rag-retrieval/services/search"
)

// Dependencies holds every long-lived component. It is the single wiring
// point shared by the server and the CLI.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	RepoFactory  *postgres.RepositoryFactory
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Backends
	Registry *providers.Registry
	Gateway  *providers.Gateway

	// Services
	Chunker    *chunker.Chunker
	Embeddings *embedding.Store
	Ingestion  *ingestion.Service
	Cache      cache.ResponseCache
	Engine     *search.Engine
	Retrieval  *retrieval.Service

	AuthMiddleware *middleware.AuthMiddleware

	stopWorkers context.CancelFunc
}

// NewDependencies connects to the database, makes sure the schema exists and
// wires all services
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initBackends(cfg); err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("backend", cfg.Providers.Default),
		zap.String("cache", cfg.Search.CacheBackend))
	return deps, nil
}

// NewDependenciesFromDB wires services over an already open database. The
// schema is not touched.
func NewDependenciesFromDB(cfg *config.Config, db *postgres.DB, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		RepoFactory: postgres.NewRepositoryFactoryFromDB(db, logger),
	}
	deps.Repositories = deps.RepoFactory.NewRepositories()
	deps.TxManager = deps.RepoFactory.GetTransactionManager()

	if err := deps.initBackends(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}
	deps.initServices(cfg)
	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	return deps, nil
}

func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repositories = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database schema ready")
	return nil
}

// initBackends registers the pseudo backend always and the live backends
// that are configured, then builds the gateway over the default one
func (d *Dependencies) initBackends(cfg *config.Config) error {
	registry, err := NewBackendRegistry(cfg, d.Logger)
	if err != nil {
		return err
	}

	models, err := BuildModelMap(cfg.Providers)
	if err != nil {
		return err
	}

	kind, err := providers.ParseBackendKind(cfg.Providers.Default)
	if err != nil {
		return err
	}

	gateway, err := providers.NewGateway(registry, providers.GatewayConfig{
		Default:     kind,
		Models:      models,
		CallTimeout: cfg.Providers.CallTimeout,
		RateLimit: providers.RateLimitConfig{
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			BurstSize:         cfg.Providers.Burst,
		},
	}, d.Logger)
	if err != nil {
		return err
	}

	if kind == providers.BackendPseudo {
		d.Logger.Warn("pseudo embeddings are the default backend; similarity scores carry no meaning")
	}

	d.Registry = registry
	d.Gateway = gateway
	return nil
}

// NewBackendRegistry registers every backend the configuration enables
func NewBackendRegistry(cfg *config.Config, logger *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if err := registry.Register(pseudo.New(cfg.Providers.Dimension)); err != nil {
		return nil, err
	}

	if cfg.Providers.OpenAI.APIKey != "" {
		adapter := openai.NewAdapter(openai.Config{
			APIKey:     cfg.Providers.OpenAI.APIKey,
			BaseURL:    cfg.Providers.OpenAI.BaseURL,
			OrgID:      cfg.Providers.OpenAI.OrgID,
			Timeout:    cfg.Providers.CallTimeout,
			MaxRetries: cfg.Providers.OpenAI.MaxRetries,
			RetryDelay: cfg.Providers.OpenAI.RetryDelay,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		logger.Info("registered backend", zap.String("backend", config.BackendOpenAI))
	}

	if cfg.Providers.Ollama.ServerURL != "" {
		if err := registry.Register(ollama.NewAdapter(cfg.Providers.Ollama.ServerURL)); err != nil {
			return nil, err
		}
		logger.Info("registered backend",
			zap.String("backend", config.BackendOllama),
			zap.String("server_url", cfg.Providers.Ollama.ServerURL))
	}

	return registry, nil
}

// BuildModelMap converts the per-backend task models of the configuration
func BuildModelMap(cfg config.ProvidersConfig) (providers.ModelMap, error) {
	models := providers.ModelMap{}
	for name, tasks := range cfg.Models {
		kind, err := providers.ParseBackendKind(name)
		if err != nil {
			return nil, fmt.Errorf("models: %w", err)
		}
		models.Set(kind, providers.TaskEmbedding, tasks.Embedding)
		models.Set(kind, providers.TaskCompletion, tasks.Completion)
	}
	return models, nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Chunker = chunker.New(
		chunker.WithMaxChunkSize(cfg.Chunking.MaxChunkSize),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)
	d.Cache = d.newResponseCache(cfg.Search)
	d.Embeddings = embedding.NewStore(d.Repositories, d.TxManager, d.Gateway, d.Logger.Named("embedding"),
		embedding.WithInvalidator(d.Cache))
	d.Ingestion = ingestion.NewService(d.Repositories, d.TxManager, d.Chunker, d.Embeddings, ingestion.Config{}, d.Logger.Named("ingestion"))
	d.Engine = search.NewEngine(d.Logger.Named("search"))
	d.Retrieval = retrieval.NewService(d.Gateway, d.Repositories.Chunks, d.Engine, d.Cache, retrieval.Config{
		TopK:      cfg.Search.TopK,
		Threshold: cfg.Search.Threshold,
	}, d.Logger.Named("retrieval"))
}

func (d *Dependencies) newResponseCache(cfg config.SearchConfig) cache.ResponseCache {
	if cfg.CacheBackend == "postgres" {
		return cache.NewPersistent(d.Repositories.Cache, cfg.CacheTTL, time.Now, d.Logger.Named("cache"))
	}

	mem := cache.NewMemory(cfg.CacheMaxEntries, cfg.CacheTTL)
	if cfg.CacheCleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopWorkers = cancel
		go mem.StartCleanupWorker(ctx, cfg.CacheCleanupInterval)
	}
	return mem
}

// initAuth enables bearer tokens on write routes when a secret is set.
// Outside production a missing secret disables auth.
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		d.Logger.Warn("no JWT secret configured, write routes are unauthenticated")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	validator, err := middleware.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	return nil
}

// Close waits for background ingestion and shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Ingestion != nil {
		if err := d.Ingestion.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("background ingestion did not finish: %w", err))
		}
	}

	if d.stopWorkers != nil {
		d.stopWorkers()
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
