// Package handlers is the thin HTTP boundary: decode, validate, call one
// service method, encode.
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services/embedding"
	"github.com/upb/rag-retrieval/services/ingestion"
	"github.com/upb/rag-retrieval/services/retrieval"
	"github.com/upb/rag-retrieval/utils"
)

// maxJSONBytes bounds JSON request bodies other than uploads
const maxJSONBytes = 1 << 20

// SearchService is implemented by *retrieval.Service
type SearchService interface {
	Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error)
	Answer(ctx context.Context, req retrieval.AnswerRequest) (*retrieval.AnswerResponse, error)
}

// DocumentService is implemented by *ingestion.Service
type DocumentService interface {
	Ingest(ctx context.Context, req ingestion.IngestRequest) (*ingestion.IngestResult, error)
	IngestAsync(ctx context.Context, req ingestion.IngestRequest) (*models.Document, error)
	Document(ctx context.Context, id uuid.UUID) (*ingestion.DocumentView, error)
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)
}

// ChunkStore is implemented by *embedding.Store
type ChunkStore interface {
	UpdateField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind, text string) (*embedding.FieldStatus, error)
	DeleteChunk(ctx context.Context, chunkID uuid.UUID) error
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}

// decodeAndValidate reads a JSON body into dst and runs struct validation,
// writing a 400 and returning false on failure
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := utils.DecodeJSON(w, r, maxJSONBytes, dst); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}
