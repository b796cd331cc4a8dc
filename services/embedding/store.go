// Package embedding keeps the per-field embeddings of chunks in step with
// their text.
package embedding

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/providers"
)

// Embedder produces vectors; *providers.Gateway satisfies it
type Embedder interface {
	Embed(ctx context.Context, text string, task providers.TaskType) (*providers.EmbedResult, error)
}

// FieldStatus is the outcome of embedding one field
type FieldStatus struct {
	Stored bool
	Pseudo bool
	Err    error
}

// ChunkReport collects the per-field outcomes for one chunk. A chunk whose
// Content failed while other fields succeeded is a valid partial result.
type ChunkReport struct {
	ChunkID uuid.UUID
	Fields  map[models.FieldKind]*FieldStatus
}

// Stored reports whether the given field has a stored embedding
func (r *ChunkReport) Stored(field models.FieldKind) bool {
	st, ok := r.Fields[field]
	return ok && st.Stored
}

// Failures returns the fields that were attempted and not stored
func (r *ChunkReport) Failures() []models.FieldKind {
	var failed []models.FieldKind
	for _, k := range models.FieldKinds {
		if st, ok := r.Fields[k]; ok && !st.Stored {
			failed = append(failed, k)
		}
	}
	return failed
}

// Pseudo reports whether any stored field used a pseudo embedding
func (r *ChunkReport) Pseudo() bool {
	for _, st := range r.Fields {
		if st.Stored && st.Pseudo {
			return true
		}
	}
	return false
}

// Invalidator drops results derived from chunks that have since changed;
// cache.ResponseCache satisfies it
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Store generates and persists field embeddings
type Store struct {
	documents   repositories.DocumentRepository
	chunks      repositories.ChunkRepository
	embeddings  repositories.EmbeddingRepository
	tx          repositories.TransactionManager
	embedder    Embedder
	invalidator Invalidator
	logger      *zap.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithInvalidator is notified after every chunk update or deletion
func WithInvalidator(inv Invalidator) StoreOption {
	return func(s *Store) {
		s.invalidator = inv
	}
}

// NewStore creates a new embedding store
func NewStore(
	repos *repositories.Repositories,
	tx repositories.TransactionManager,
	embedder Embedder,
	logger *zap.Logger,
	opts ...StoreOption,
) *Store {
	s := &Store{
		documents:  repos.Documents,
		chunks:     repos.Chunks,
		embeddings: repos.Embeddings,
		tx:         tx,
		embedder:   embedder,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmbedChunk embeds every populated field of chunk concurrently. Each field
// succeeds or fails on its own; a timeout on one never stops its siblings.
func (s *Store) EmbedChunk(ctx context.Context, chunk *models.Chunk) *ChunkReport {
	fields := chunk.PopulatedFields()
	report := &ChunkReport{
		ChunkID: chunk.ID,
		Fields:  make(map[models.FieldKind]*FieldStatus, len(fields)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, field := range fields {
		wg.Add(1)
		go func(field models.FieldKind) {
			defer wg.Done()
			status := s.embedField(ctx, chunk.ID, field, chunk.FieldText(field))
			mu.Lock()
			report.Fields[field] = status
			mu.Unlock()
		}(field)
	}
	wg.Wait()

	if failed := report.Failures(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = string(f)
		}
		s.logger.Warn("chunk embedded partially",
			zap.String("chunk_id", chunk.ID.String()),
			zap.Int("chunk_index", chunk.Index),
			zap.Strings("failed_fields", names),
		)
	}
	return report
}

// UpdateField persists new text for one field and regenerates only that
// field's embedding. Clearing an optional field removes its embedding. When
// regeneration fails the stale embedding is dropped so the field is not
// matched against text it no longer holds.
func (s *Store) UpdateField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind, text string) (*FieldStatus, error) {
	if _, err := models.ParseFieldKind(string(field)); err != nil {
		return nil, services.ErrInvalidFieldKind
	}
	if field == models.FieldContent && text == "" {
		return nil, services.WrapValidation("content cannot be empty", nil)
	}

	if _, err := s.chunks.GetByID(ctx, chunkID); err != nil {
		return nil, mapChunkErr(err)
	}
	if err := s.chunks.UpdateField(ctx, chunkID, field, text); err != nil {
		return nil, mapChunkErr(err)
	}
	defer s.invalidate(ctx)

	if text == "" {
		if err := s.embeddings.DeleteField(ctx, chunkID, field); err != nil {
			return nil, services.WrapInternal("failed to remove field embedding", err)
		}
		return &FieldStatus{}, nil
	}

	status := s.embedField(ctx, chunkID, field, text)
	if !status.Stored {
		if err := s.embeddings.DeleteField(ctx, chunkID, field); err != nil {
			s.logger.Error("failed to drop stale embedding",
				zap.String("chunk_id", chunkID.String()),
				zap.String("field", string(field)),
				zap.Error(err),
			)
		}
	}
	return status, nil
}

// DeleteChunk removes a chunk and its embeddings, then closes the index gap
// in its document, all in one transaction
func (s *Store) DeleteChunk(ctx context.Context, chunkID uuid.UUID) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		chunk, err := s.chunks.GetByID(ctx, chunkID)
		if err != nil {
			return mapChunkErr(err)
		}
		if err := s.chunks.Delete(ctx, chunkID); err != nil {
			return mapChunkErr(err)
		}
		if err := s.chunks.CompactIndexes(ctx, chunk.DocumentID, chunk.Index); err != nil {
			return services.WrapInternal("failed to compact chunk indexes", err)
		}
		s.logger.Info("chunk deleted",
			zap.String("chunk_id", chunkID.String()),
			zap.String("document_id", chunk.DocumentID.String()),
		)
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteDocument removes a document; its chunks and embeddings follow by cascade
func (s *Store) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.documents.Delete(ctx, documentID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrDocumentNotFound
			}
			return services.WrapInternal("failed to delete document", err)
		}
		s.logger.Info("document deleted", zap.String("document_id", documentID.String()))
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// invalidate runs after a committed change, so a failure is only logged
func (s *Store) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate response cache", zap.Error(err))
	}
}

func (s *Store) embedField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind, text string) *FieldStatus {
	res, err := s.embedder.Embed(ctx, text, providers.TaskEmbedding)
	if err != nil {
		s.logger.Warn("field embedding failed",
			zap.String("chunk_id", chunkID.String()),
			zap.String("field", string(field)),
			zap.Error(err),
		)
		return &FieldStatus{Err: err}
	}

	if err := models.ValidateVector(res.Vector); err != nil {
		err = services.NewDomainError(services.ErrorTypeInvalidEmbedding, "invalid embedding vector", err)
		s.logger.Warn("discarding invalid embedding",
			zap.String("chunk_id", chunkID.String()),
			zap.String("field", string(field)),
			zap.Error(err),
		)
		return &FieldStatus{Err: err}
	}

	emb := models.NewEmbedding(chunkID, field, res.Vector, res.Model, res.Pseudo)
	if err := s.embeddings.Upsert(ctx, emb); err != nil {
		s.logger.Error("failed to store embedding",
			zap.String("chunk_id", chunkID.String()),
			zap.String("field", string(field)),
			zap.Error(err),
		)
		return &FieldStatus{Err: services.WrapInternal("failed to store embedding", err)}
	}

	return &FieldStatus{Stored: true, Pseudo: res.Pseudo}
}

func mapChunkErr(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrChunkNotFound
	}
	if services.GetErrorType(err) != "" {
		return err
	}
	return services.WrapInternal("chunk operation failed", err)
}
