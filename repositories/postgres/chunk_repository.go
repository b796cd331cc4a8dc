package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"go.uber.org/zap"
)

// ChunkRepository implements the repositories.ChunkRepository interface
type ChunkRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB, logger *zap.Logger) repositories.ChunkRepository {
	return &ChunkRepository{
		db:     db,
		logger: logger,
	}
}

const chunkColumns = `id, document_id, chunk_index, content, header_context, notes, details, created_at, updated_at`

// CreateBatch inserts the chunks of one document. Callers that need all-or-nothing
// semantics run it inside InTransaction.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*models.Chunk) error {
	query := `
		INSERT INTO chunks (` + chunkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	for _, c := range chunks {
		_, err := executor.ExecContext(ctx, query,
			c.ID,
			c.DocumentID,
			c.Index,
			c.Content,
			c.HeaderContext,
			c.Notes,
			c.Details,
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create chunk %d: %w", c.Index, err)
		}
	}

	r.logger.Debug("chunks created", zap.Int("count", len(chunks)))
	return nil
}

// GetByID retrieves a chunk by ID
func (r *ChunkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	chunk, err := scanChunk(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return chunk, nil
}

// ListByDocument returns a document's chunks in index order
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Chunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// UpdateField replaces the text of one field. Empty optional fields become NULL.
func (r *ChunkRepository) UpdateField(ctx context.Context, id uuid.UUID, field models.FieldKind, text string) error {
	column, err := fieldColumn(field)
	if err != nil {
		return err
	}

	var value interface{} = text
	if field != models.FieldContent && text == "" {
		value = nil
	}

	query := fmt.Sprintf(`UPDATE chunks SET %s = $2, updated_at = $3 WHERE id = $1`, column)

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update chunk field: %w", err)
	}

	if err := requireAffected(result, "chunk", id); err != nil {
		return err
	}

	r.logger.Debug("chunk field updated", zap.String("id", id.String()), zap.String("field", string(field)))
	return nil
}

// Delete removes a chunk; its embeddings follow by cascade
func (r *ChunkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM chunks WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}

	if err := requireAffected(result, "chunk", id); err != nil {
		return err
	}

	r.logger.Debug("chunk deleted", zap.String("id", id.String()))
	return nil
}

// CompactIndexes closes the gap left by a deleted chunk. The unique index on
// (document_id, chunk_index) is deferred, so the shift must run in a transaction.
func (r *ChunkRepository) CompactIndexes(ctx context.Context, documentID uuid.UUID, removedIndex int) error {
	query := `
		UPDATE chunks
		SET chunk_index = chunk_index - 1,
		    updated_at = $3
		WHERE document_id = $1 AND chunk_index > $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, documentID, removedIndex, time.Now())
	if err != nil {
		return fmt.Errorf("failed to compact chunk indexes: %w", err)
	}

	shifted, _ := result.RowsAffected()
	r.logger.Debug("chunk indexes compacted",
		zap.String("document_id", documentID.String()),
		zap.Int("removed_index", removedIndex),
		zap.Int64("shifted", shifted),
	)
	return nil
}

// ScanCandidates loads every chunk of a ready document with its field
// embeddings in a single pass over a join ordered by chunk.
func (r *ChunkRepository) ScanCandidates(ctx context.Context) ([]models.ChunkCandidate, int, error) {
	query := `
		SELECT c.id, c.document_id, c.chunk_index, d.file_name, d.path,
		       c.content, c.header_context, c.notes, c.details,
		       e.field_kind, e.vector, e.dimension, e.model, e.pseudo, e.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		LEFT JOIN chunk_embeddings e ON e.chunk_id = c.id
		WHERE d.status = $1
		ORDER BY c.document_id, c.chunk_index
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, models.DocumentStatusReady)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan candidates: %w", err)
	}
	defer rows.Close()

	var (
		candidates []models.ChunkCandidate
		index      = make(map[uuid.UUID]int)
		skipped    int
	)

	for rows.Next() {
		var (
			cand                      models.ChunkCandidate
			headerCtx, notes, details sql.NullString
			fieldKind, model          sql.NullString
			vector                    []byte
			dimension                 sql.NullInt64
			pseudo                    sql.NullBool
			createdAt                 sql.NullTime
		)
		err := rows.Scan(
			&cand.ChunkID,
			&cand.DocumentID,
			&cand.ChunkIndex,
			&cand.FileName,
			&cand.Path,
			&cand.Content,
			&headerCtx,
			&notes,
			&details,
			&fieldKind,
			&vector,
			&dimension,
			&model,
			&pseudo,
			&createdAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate row: %w", err)
		}

		pos, seen := index[cand.ChunkID]
		if !seen {
			cand.HeaderContext = headerCtx.String
			cand.Notes = notes.String
			cand.Details = details.String
			cand.Embeddings = make(map[models.FieldKind]*models.Embedding)
			candidates = append(candidates, cand)
			pos = len(candidates) - 1
			index[cand.ChunkID] = pos
		}

		if !fieldKind.Valid {
			continue
		}

		kind, err := models.ParseFieldKind(fieldKind.String)
		if err != nil {
			skipped++
			r.logger.Warn("skipping embedding with unknown field kind",
				zap.String("chunk_id", cand.ChunkID.String()),
				zap.String("field_kind", fieldKind.String),
			)
			continue
		}

		vec, err := models.DecodeVector(vector, int(dimension.Int64))
		if err != nil {
			skipped++
			r.logger.Warn("skipping undecodable embedding",
				zap.String("chunk_id", cand.ChunkID.String()),
				zap.String("field_kind", fieldKind.String),
				zap.Error(err),
			)
			continue
		}

		candidates[pos].Embeddings[kind] = &models.Embedding{
			ChunkID:   cand.ChunkID,
			Field:     kind,
			Vector:    vec,
			Dimension: len(vec),
			Model:     model.String,
			Pseudo:    pseudo.Bool,
			CreatedAt: createdAt.Time,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating candidate rows: %w", err)
	}

	return candidates, skipped, nil
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	chunk := &models.Chunk{}
	var headerCtx, notes, details sql.NullString
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Index,
		&chunk.Content,
		&headerCtx,
		&notes,
		&details,
		&chunk.CreatedAt,
		&chunk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	chunk.HeaderContext = nullableString(headerCtx)
	chunk.Notes = nullableString(notes)
	chunk.Details = nullableString(details)
	return chunk, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func fieldColumn(field models.FieldKind) (string, error) {
	switch field {
	case models.FieldContent:
		return "content", nil
	case models.FieldHeaderContext:
		return "header_context", nil
	case models.FieldNotes:
		return "notes", nil
	case models.FieldDetails:
		return "details", nil
	}
	return "", fmt.Errorf("unknown field kind %q", field)
}
