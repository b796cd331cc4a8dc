package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/ingestion"
)

func documentRouter(h *DocumentHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/documents", h.HandleUpload)
	r.Get("/api/v1/documents", h.HandleList)
	r.Get("/api/v1/documents/{id}", h.HandleGet)
	r.Delete("/api/v1/documents/{id}", h.HandleDelete)
	return r
}

func multipartBody(t *testing.T, fileName, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	logger := zap.NewNop()

	t.Run("multipart upload runs in background", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 1<<20, logger)

		doc := models.NewDocument("manual.md", "guides/manual.md", "text/markdown", "")
		docs.On("IngestAsync", mock.Anything, mock.MatchedBy(func(req ingestion.IngestRequest) bool {
			return req.FileName == "manual.md" &&
				req.Path == "guides/manual.md" &&
				req.ContentType == "text/markdown" &&
				string(req.Data) == "# Setup\n\nRun it." &&
				req.Notes == "reviewed"
		})).Return(doc, nil)

		body, ct := multipartBody(t, "manual.md", "text/markdown", []byte("# Setup\n\nRun it."),
			map[string]string{"path": "guides/manual.md", "notes": "reviewed"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "/api/v1/documents/"+doc.ID.String(), w.Header().Get("Location"))

		var got models.Document
		decodeData(t, w, &got)
		assert.Equal(t, models.DocumentStatusProcessing, got.Status)
		docs.AssertExpectations(t)
	})

	t.Run("octet-stream falls back to extension", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 1<<20, logger)

		docs.On("IngestAsync", mock.Anything, mock.MatchedBy(func(req ingestion.IngestRequest) bool {
			return req.ContentType == "" && req.Path == ""
		})).Return(models.NewDocument("a.pdf", "a.pdf", "", ""), nil)

		body, ct := multipartBody(t, "a.pdf", "application/octet-stream", []byte("%PDF-1.4"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("upload too large", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 64, logger)

		body, ct := multipartBody(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 1024), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		docs.AssertNotCalled(t, "IngestAsync", mock.Anything, mock.Anything)
	})

	t.Run("missing file part", func(t *testing.T) {
		handler := NewDocumentHandler(new(mockDocumentService), new(mockChunkStore), 1<<20, logger)

		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		require.NoError(t, mw.WriteField("notes", "x"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("json text with wait", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 1<<20, logger)

		id := uuid.New()
		docs.On("Ingest", mock.Anything, mock.MatchedBy(func(req ingestion.IngestRequest) bool {
			return req.FileName == "note.txt" && string(req.Data) == "A short note." && req.Details == "v2"
		})).Return(&ingestion.IngestResult{DocumentID: id, Status: models.DocumentStatusReady, ChunkCount: 1}, nil)

		body := `{"file_name":"note.txt","text":"A short note.","details":"v2"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents?wait=true", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var result ingestion.IngestResult
		decodeData(t, w, &result)
		assert.Equal(t, id, result.DocumentID)
		assert.Equal(t, 1, result.ChunkCount)
		docs.AssertNotCalled(t, "IngestAsync", mock.Anything, mock.Anything)
	})

	t.Run("json text missing fields", func(t *testing.T) {
		handler := NewDocumentHandler(new(mockDocumentService), new(mockChunkStore), 1<<20, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"text":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "file_name is required")
	})

	t.Run("unsupported content", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 1<<20, logger)
		docs.On("IngestAsync", mock.Anything, mock.Anything).
			Return(nil, services.WrapValidation("document is not valid UTF-8", services.ErrUnsupportedInput))

		body, ct := multipartBody(t, "bin.txt", "text/plain", []byte{0xff, 0xfe}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()

		documentRouter(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleGetDocument(t *testing.T) {
	logger := zap.NewNop()

	t.Run("found", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 0, logger)

		doc := models.NewDocument("a.txt", "a.txt", "text/plain", "raw text")
		chunk := models.NewChunk(doc.ID, 0, "raw text", "", "", "")
		docs.On("Document", mock.Anything, doc.ID).Return(&ingestion.DocumentView{Document: doc, Chunks: []*models.Chunk{chunk}}, nil)

		w := httptest.NewRecorder()
		documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "raw_text")

		var view struct {
			ID     uuid.UUID       `json:"id"`
			Chunks []*models.Chunk `json:"chunks"`
		}
		decodeData(t, w, &view)
		assert.Equal(t, doc.ID, view.ID)
		assert.Len(t, view.Chunks, 1)
	})

	t.Run("not found", func(t *testing.T) {
		docs := new(mockDocumentService)
		handler := NewDocumentHandler(docs, new(mockChunkStore), 0, logger)
		docs.On("Document", mock.Anything, mock.Anything).Return(nil, services.ErrDocumentNotFound)

		w := httptest.NewRecorder()
		documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		handler := NewDocumentHandler(new(mockDocumentService), new(mockChunkStore), 0, logger)

		w := httptest.NewRecorder()
		documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/42", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleListDocuments(t *testing.T) {
	docs := new(mockDocumentService)
	handler := NewDocumentHandler(docs, new(mockChunkStore), 0, zap.NewNop())
	docs.On("List", mock.Anything, 10, 20).Return([]*models.Document{models.NewDocument("a.txt", "a.txt", "", "")}, nil)

	w := httptest.NewRecorder()
	documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=10&offset=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var list []models.Document
	decodeData(t, w, &list)
	assert.Len(t, list, 1)
}

func TestHandleDeleteDocument(t *testing.T) {
	logger := zap.NewNop()

	t.Run("deleted", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewDocumentHandler(new(mockDocumentService), store, 0, logger)
		id := uuid.New()
		store.On("DeleteDocument", mock.Anything, id).Return(nil)

		w := httptest.NewRecorder()
		documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+id.String(), nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		store := new(mockChunkStore)
		handler := NewDocumentHandler(new(mockDocumentService), store, 0, logger)
		store.On("DeleteDocument", mock.Anything, mock.Anything).Return(services.ErrDocumentNotFound)

		w := httptest.NewRecorder()
		documentRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
