package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services/embedding"
	"github.com/upb/rag-retrieval/services/ingestion"
	"github.com/upb/rag-retrieval/services/retrieval"
)

type mockSearchService struct {
	mock.Mock
}

func (m *mockSearchService) Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.SearchResponse), args.Error(1)
}

func (m *mockSearchService) Answer(ctx context.Context, req retrieval.AnswerRequest) (*retrieval.AnswerResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.AnswerResponse), args.Error(1)
}

type mockDocumentService struct {
	mock.Mock
}

func (m *mockDocumentService) Ingest(ctx context.Context, req ingestion.IngestRequest) (*ingestion.IngestResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IngestResult), args.Error(1)
}

func (m *mockDocumentService) IngestAsync(ctx context.Context, req ingestion.IngestRequest) (*models.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *mockDocumentService) Document(ctx context.Context, id uuid.UUID) (*ingestion.DocumentView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.DocumentView), args.Error(1)
}

func (m *mockDocumentService) List(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Document), args.Error(1)
}

type mockChunkStore struct {
	mock.Mock
}

func (m *mockChunkStore) UpdateField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind, text string) (*embedding.FieldStatus, error) {
	args := m.Called(ctx, chunkID, field, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*embedding.FieldStatus), args.Error(1)
}

func (m *mockChunkStore) DeleteChunk(ctx context.Context, chunkID uuid.UUID) error {
	return m.Called(ctx, chunkID).Error(0)
}

func (m *mockChunkStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return m.Called(ctx, documentID).Error(0)
}

// decodeData unwraps the {"data": ...} envelope
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}
