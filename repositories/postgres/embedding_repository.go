package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"go.uber.org/zap"
)

// EmbeddingRepository implements the repositories.EmbeddingRepository interface
type EmbeddingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEmbeddingRepository creates a new embedding repository
func NewEmbeddingRepository(db *DB, logger *zap.Logger) repositories.EmbeddingRepository {
	return &EmbeddingRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or overwrites the embedding of (chunk, field)
func (r *EmbeddingRepository) Upsert(ctx context.Context, emb *models.Embedding) error {
	query := `
		INSERT INTO chunk_embeddings (chunk_id, field_kind, vector, dimension, model, pseudo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id, field_kind) DO UPDATE
		SET vector = EXCLUDED.vector,
		    dimension = EXCLUDED.dimension,
		    model = EXCLUDED.model,
		    pseudo = EXCLUDED.pseudo,
		    created_at = EXCLUDED.created_at
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		emb.ChunkID,
		emb.Field,
		models.EncodeVector(emb.Vector),
		len(emb.Vector),
		emb.Model,
		emb.Pseudo,
		emb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	r.logger.Debug("embedding stored",
		zap.String("chunk_id", emb.ChunkID.String()),
		zap.String("field", string(emb.Field)),
		zap.Int("dimension", len(emb.Vector)),
	)
	return nil
}

// ListByChunk returns every stored field embedding of a chunk
func (r *EmbeddingRepository) ListByChunk(ctx context.Context, chunkID uuid.UUID) ([]*models.Embedding, error) {
	query := `
		SELECT chunk_id, field_kind, vector, dimension, model, pseudo, created_at
		FROM chunk_embeddings
		WHERE chunk_id = $1
		ORDER BY field_kind
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, chunkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []*models.Embedding
	for rows.Next() {
		emb := &models.Embedding{}
		var raw []byte
		if err := rows.Scan(
			&emb.ChunkID,
			&emb.Field,
			&raw,
			&emb.Dimension,
			&emb.Model,
			&emb.Pseudo,
			&emb.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}

		emb.Vector, err = models.DecodeVector(raw, emb.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for field %s: %w", emb.Field, err)
		}
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embedding rows: %w", err)
	}

	return embeddings, nil
}

// DeleteField removes the embedding of one field. A missing row is not an error.
func (r *EmbeddingRepository) DeleteField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind) error {
	query := `DELETE FROM chunk_embeddings WHERE chunk_id = $1 AND field_kind = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, chunkID, field); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	r.logger.Debug("embedding deleted", zap.String("chunk_id", chunkID.String()), zap.String("field", string(field)))
	return nil
}
