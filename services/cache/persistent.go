package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
)

// Persistent stores entries in the response_cache table so they survive
// restarts and are shared between server instances.
type Persistent struct {
	repo   repositories.CacheRepository
	ttl    time.Duration
	now    Clock
	logger *zap.Logger
}

var _ ResponseCache = (*Persistent)(nil)

// NewPersistent creates a database-backed cache
func NewPersistent(repo repositories.CacheRepository, ttl time.Duration, now Clock, logger *zap.Logger) *Persistent {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Persistent{repo: repo, ttl: ttl, now: now, logger: logger}
}

// Lookup deletes expired rows, then fetches the newest row for queryText
func (p *Persistent) Lookup(ctx context.Context, queryText string) (*models.CacheEntry, bool, error) {
	now := p.now().UTC()

	purged, err := p.repo.DeleteExpired(ctx, now.Add(-p.ttl))
	if err != nil {
		return nil, false, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	if purged > 0 {
		p.logger.Debug("purged expired cache entries", zap.Int64("count", purged))
	}

	entry, err := p.repo.GetLatest(ctx, queryText)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	// a row written between the purge and the read by a skewed clock
	if entry.IsExpired(now, p.ttl) {
		return nil, false, nil
	}
	return entry, true, nil
}

// Store replaces every row for queryText with a new one. Rows are stamped in
// UTC so expiry does not depend on the host time zone.
func (p *Persistent) Store(ctx context.Context, queryText, content string, embedding []float32) error {
	entry := models.NewCacheEntry(queryText, content, embedding, p.now().UTC())
	if err := p.repo.Replace(ctx, entry); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Invalidate deletes every cached row
func (p *Persistent) Invalidate(ctx context.Context) error {
	n, err := p.repo.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	p.logger.Debug("cache cleared", zap.Int64("count", n))
	return nil
}
