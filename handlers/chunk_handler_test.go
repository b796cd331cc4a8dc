package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/embedding"
)

func chunkRouter(h *ChunkHandler) http.Handler {
	r := chi.NewRouter()
	r.Patch("/api/v1/chunks/{id}", h.HandleUpdate)
	r.Delete("/api/v1/chunks/{id}", h.HandleDelete)
	return r
}

func patchChunk(h *ChunkHandler, id, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/chunks/"+id, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	chunkRouter(h).ServeHTTP(w, req)
	return w
}

func TestHandleUpdateChunk(t *testing.T) {
	logger := zap.NewNop()

	t.Run("field re-embedded", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewChunkHandler(store, logger)
		id := uuid.New()
		store.On("UpdateField", mock.Anything, id, models.FieldNotes, "checked twice").
			Return(&embedding.FieldStatus{Stored: true}, nil)

		w := patchChunk(handler, id.String(), `{"field":"notes","text":"checked twice"}`)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp UpdateChunkResponse
		decodeData(t, w, &resp)
		assert.Equal(t, id, resp.ChunkID)
		assert.True(t, resp.Embedded)
		assert.Empty(t, resp.Error)
	})

	t.Run("clearing an optional field", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewChunkHandler(store, logger)
		id := uuid.New()
		store.On("UpdateField", mock.Anything, id, models.FieldDetails, "").Return(&embedding.FieldStatus{}, nil)

		w := patchChunk(handler, id.String(), `{"field":"details","text":""}`)

		assert.Equal(t, http.StatusOK, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("embedding failure still answers 200", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewChunkHandler(store, logger)
		id := uuid.New()
		store.On("UpdateField", mock.Anything, id, models.FieldContent, "new text").
			Return(&embedding.FieldStatus{Err: services.ErrBackendUnavailable}, nil)

		w := patchChunk(handler, id.String(), `{"field":"content","text":"new text"}`)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp UpdateChunkResponse
		decodeData(t, w, &resp)
		assert.False(t, resp.Embedded)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("unknown field", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewChunkHandler(store, logger)

		w := patchChunk(handler, uuid.NewString(), `{"field":"title","text":"x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "UpdateField", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing text", func(t *testing.T) {
		handler := NewChunkHandler(new(mockChunkStore), logger)

		w := patchChunk(handler, uuid.NewString(), `{"field":"notes"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("chunk not found", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewChunkHandler(store, logger)
		store.On("UpdateField", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, services.ErrChunkNotFound)

		w := patchChunk(handler, uuid.NewString(), `{"field":"notes","text":"x"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleDeleteChunk(t *testing.T) {
	store := new(mockChunkStore)
	handler := NewChunkHandler(store, zap.NewNop())
	id := uuid.New()
	store.On("DeleteChunk", mock.Anything, id).Return(nil)

	w := httptest.NewRecorder()
	chunkRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/chunks/"+id.String(), nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	store.AssertExpectations(t)

	w = httptest.NewRecorder()
	chunkRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/chunks/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
