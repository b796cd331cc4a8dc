package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/retrieval"
	"github.com/upb/rag-retrieval/services/search"
)

func TestHandleSearch(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful search", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)

		chunkID := uuid.New()
		svc.On("Search", mock.Anything, mock.MatchedBy(func(req retrieval.SearchRequest) bool {
			return req.Query == "installation requirements" && req.TopK == 3 && req.Threshold != nil && *req.Threshold == 0.7
		})).Return(&retrieval.SearchResponse{
			Query:     "installation requirements",
			TopK:      3,
			Threshold: 0.7,
			Results: []search.Result{{
				ChunkID:       chunkID,
				FileName:      "manual.md",
				Content:       "A modern processor is required.",
				Score:         0.95,
				MatchedFields: []models.FieldKind{models.FieldHeaderContext},
			}},
		}, nil)

		body := `{"query":"installation requirements","top_k":3,"threshold":0.7}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.HandleSearch(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp retrieval.SearchResponse
		decodeData(t, w, &resp)
		if assert.Len(t, resp.Results, 1) {
			assert.Equal(t, chunkID, resp.Results[0].ChunkID)
			assert.Equal(t, []models.FieldKind{models.FieldHeaderContext}, resp.Results[0].MatchedFields)
		}
		svc.AssertExpectations(t)
	})

	t.Run("validation failure", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"x","top_k":0,"threshold":1.5}`))
		w := httptest.NewRecorder()

		handler.HandleSearch(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "threshold")
		svc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := NewSearchHandler(new(mockSearchService), logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":`))
		w := httptest.NewRecorder()

		handler.HandleSearch(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("backend unavailable", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)
		svc.On("Search", mock.Anything, mock.Anything).Return(nil, services.ErrBackendUnavailable)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"anything"}`))
		w := httptest.NewRecorder()

		handler.HandleSearch(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("whitespace query", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)
		svc.On("Search", mock.Anything, mock.Anything).Return(nil, services.ErrEmptyQuery)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"   "}`))
		w := httptest.NewRecorder()

		handler.HandleSearch(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleAnswer(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful answer", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)

		svc.On("Answer", mock.Anything, mock.MatchedBy(func(req retrieval.AnswerRequest) bool {
			return req.Query == "how do I install?" && req.MaxTokens == 256
		})).Return(&retrieval.AnswerResponse{
			Answer:  "Run the setup program [1].",
			Sources: []search.Result{{FileName: "manual.md"}},
			Model:   "gpt-4o-mini",
		}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", strings.NewReader(`{"query":"how do I install?","max_tokens":256}`))
		w := httptest.NewRecorder()

		handler.HandleAnswer(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp retrieval.AnswerResponse
		decodeData(t, w, &resp)
		assert.Equal(t, "Run the setup program [1].", resp.Answer)
		assert.Len(t, resp.Sources, 1)
	})

	t.Run("temperature out of range", func(t *testing.T) {
		svc := new(mockSearchService)
		handler := NewSearchHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", strings.NewReader(`{"query":"q","temperature":3}`))
		w := httptest.NewRecorder()

		handler.HandleAnswer(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
	})
}
