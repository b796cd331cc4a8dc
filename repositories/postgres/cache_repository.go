package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"go.uber.org/zap"
)

// CacheRepository implements the repositories.CacheRepository interface
type CacheRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCacheRepository creates a new response cache repository
func NewCacheRepository(db *DB, logger *zap.Logger) repositories.CacheRepository {
	return &CacheRepository{
		db:     db,
		logger: logger,
	}
}

// GetLatest returns the newest entry for exactly queryText
func (r *CacheRepository) GetLatest(ctx context.Context, queryText string) (*models.CacheEntry, error) {
	query := `
		SELECT id, query_text, content, embedding, dimension, created_at
		FROM response_cache
		WHERE query_text = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	entry := &models.CacheEntry{}
	var (
		raw       []byte
		dimension int
	)
	err := executor.QueryRowContext(ctx, query, queryText).Scan(
		&entry.ID,
		&entry.QueryText,
		&entry.Content,
		&raw,
		&dimension,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if len(raw) > 0 {
		entry.Embedding, err = models.DecodeVector(raw, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cached query embedding: %w", err)
		}
	}

	return entry, nil
}

// Replace removes older entries for the query and inserts entry in one statement
func (r *CacheRepository) Replace(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		WITH removed AS (
			DELETE FROM response_cache WHERE query_text = $2
		)
		INSERT INTO response_cache (id, query_text, content, embedding, dimension, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var raw interface{}
	if len(entry.Embedding) > 0 {
		raw = models.EncodeVector(entry.Embedding)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.QueryText,
		entry.Content,
		raw,
		len(entry.Embedding),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}

	r.logger.Debug("cache entry stored", zap.String("id", entry.ID.String()))
	return nil
}

// DeleteExpired removes entries created at or before cutoff
func (r *CacheRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM response_cache WHERE created_at <= $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteAll removes every cached entry
func (r *CacheRepository) DeleteAll(ctx context.Context) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
