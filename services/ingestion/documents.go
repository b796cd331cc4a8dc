package ingestion

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"github.com/upb/rag-retrieval/services"
)

const maxListLimit = 100

// DocumentView is a document with its chunks in index order
type DocumentView struct {
	*models.Document
	Chunks []*models.Chunk `json:"chunks"`
}

// Document returns a document and its chunks
func (s *Service) Document(ctx context.Context, id uuid.UUID) (*DocumentView, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDocumentNotFound
		}
		return nil, services.WrapInternal("failed to load document", err)
	}

	chunks, err := s.chunks.ListByDocument(ctx, id)
	if err != nil {
		return nil, services.WrapInternal("failed to load chunks", err)
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	return &DocumentView{Document: doc, Chunks: chunks}, nil
}

// List returns documents newest first. limit is clamped to [1, 100].
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.documents.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list documents", err)
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}
