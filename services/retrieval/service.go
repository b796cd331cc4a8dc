// Package retrieval is the caller-facing search boundary: it embeds the
// query, consults the response cache and ranks stored chunks on a miss.
package retrieval

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/cache"
	"github.com/upb/rag-retrieval/services/providers"
	"github.com/upb/rag-retrieval/services/search"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.5
)

// Gateway is the part of *providers.Gateway the service uses
type Gateway interface {
	Embed(ctx context.Context, text string, task providers.TaskType) (*providers.EmbedResult, error)
	Complete(ctx context.Context, messages []providers.Message, maxTokens int, temperature float64, task providers.TaskType) (*providers.Completion, error)
}

// SearchRequest asks for the chunks most similar to Query. A nil Threshold
// uses the configured default; an explicit zero is honoured.
type SearchRequest struct {
	Query                 string   `json:"query" validate:"required,max=4000"`
	TopK                  int      `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	Threshold             *float64 `json:"threshold,omitempty" validate:"omitempty,min=-1,max=1"`
	IncludeOptionalFields bool     `json:"include_optional_fields,omitempty"`
}

// SearchResponse is a ranked result list
type SearchResponse struct {
	Query     string          `json:"query"`
	TopK      int             `json:"top_k"`
	Threshold float64         `json:"threshold"`
	Results   []search.Result `json:"results"`
	// Pseudo warns that scores came from pseudo embeddings and carry no meaning
	Pseudo bool `json:"pseudo"`
	Cached bool `json:"cached"`
}

// Config holds ranking defaults
type Config struct {
	TopK      int
	Threshold float64
}

// Service runs searches and grounded answers
type Service struct {
	gateway Gateway
	chunks  repositories.ChunkRepository
	engine  *search.Engine
	cache   cache.ResponseCache
	config  Config
	logger  *zap.Logger
}

// NewService creates a new retrieval service
func NewService(
	gateway Gateway,
	chunks repositories.ChunkRepository,
	engine *search.Engine,
	responseCache cache.ResponseCache,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	return &Service{
		gateway: gateway,
		chunks:  chunks,
		engine:  engine,
		cache:   responseCache,
		config:  config,
		logger:  logger,
	}
}

// cachedSearch is what the cache stores for a query text. The parameters are
// kept so a lookup with different parameters is treated as a miss.
type cachedSearch struct {
	TopK                  int            `json:"top_k"`
	Threshold             float64        `json:"threshold"`
	IncludeOptionalFields bool           `json:"include_optional_fields"`
	Response              SearchResponse `json:"response"`
}

// Search embeds the query, returns a cached response when one exists for the
// same text and parameters, and otherwise ranks every stored chunk. Only a
// failure to embed the query is returned to the caller; cache problems are
// logged and treated as misses.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, services.ErrEmptyQuery
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.TopK
	}
	threshold := s.config.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < -1 || threshold > 1 {
		return nil, services.WrapValidation("threshold must be within [-1, 1]", services.ErrInvalidInput)
	}

	start := time.Now()
	embedded, err := s.gateway.Embed(ctx, query, providers.TaskEmbedding)
	if err != nil {
		return nil, err
	}

	if resp, ok := s.lookup(ctx, query, topK, threshold, req.IncludeOptionalFields); ok {
		s.logger.Debug("search served from cache", zap.String("query", query))
		return resp, nil
	}

	candidates, skipped, err := s.chunks.ScanCandidates(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to load candidates", err)
	}
	if skipped > 0 {
		s.logger.Warn("candidate embeddings could not be decoded", zap.Int("skipped", skipped))
	}

	results := s.engine.Rank(embedded.Vector, candidates, search.Options{
		TopK:                  topK,
		Threshold:             threshold,
		IncludeOptionalFields: req.IncludeOptionalFields,
		QueryPseudo:           embedded.Pseudo,
	})
	if results == nil {
		results = []search.Result{}
	}

	resp := &SearchResponse{
		Query:     query,
		TopK:      topK,
		Threshold: threshold,
		Results:   results,
		Pseudo:    embedded.Pseudo || anyPseudo(results),
	}

	s.store(ctx, query, embedded.Vector, cachedSearch{
		TopK:                  topK,
		Threshold:             threshold,
		IncludeOptionalFields: req.IncludeOptionalFields,
		Response:              *resp,
	})

	s.logger.Info("search completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Bool("pseudo", resp.Pseudo),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (s *Service) lookup(ctx context.Context, query string, topK int, threshold float64, includeOptional bool) (*SearchResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	entry, ok, err := s.cache.Lookup(ctx, query)
	if err != nil {
		s.logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var cached cachedSearch
	if err := json.Unmarshal([]byte(entry.Content), &cached); err != nil {
		s.logger.Warn("discarding unreadable cache entry", zap.String("id", entry.ID.String()), zap.Error(err))
		return nil, false
	}
	if cached.TopK != topK || cached.Threshold != threshold || cached.IncludeOptionalFields != includeOptional {
		return nil, false
	}

	resp := cached.Response
	if resp.Results == nil {
		resp.Results = []search.Result{}
	}
	resp.Cached = true
	return &resp, true
}

func (s *Service) store(ctx context.Context, query string, vector []float32, payload cachedSearch) {
	if s.cache == nil {
		return
	}

	content, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode cache entry", zap.Error(err))
		return
	}
	if err := s.cache.Store(ctx, query, string(content), vector); err != nil {
		s.logger.Warn("cache store failed", zap.Error(err))
	}
}

func anyPseudo(results []search.Result) bool {
	for _, r := range results {
		if r.Pseudo {
			return true
		}
	}
	return false
}

// fieldLabel names a matched field in prompts
func fieldLabel(k models.FieldKind) string {
	return strings.ReplaceAll(string(k), "_", " ")
}
