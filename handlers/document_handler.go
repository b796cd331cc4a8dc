package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/internal/observability"
	"github.com/upb/rag-retrieval/middleware"
	"github.com/upb/rag-retrieval/services/ingestion"
	"github.com/upb/rag-retrieval/utils"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files
const multipartMemory = 8 << 20

// TextDocumentRequest uploads a document as inline text
type TextDocumentRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	Path        string `json:"path,omitempty" validate:"omitempty,max=1024"`
	ContentType string `json:"content_type,omitempty" validate:"omitempty,oneof=text/plain text/markdown"`
	Text        string `json:"text" validate:"required"`
	Notes       string `json:"notes,omitempty"`
	Details     string `json:"details,omitempty"`
}

// DocumentHandler handles document upload and administration
type DocumentHandler struct {
	documents      DocumentService
	store          ChunkStore
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents DocumentService, store ChunkStore, maxUploadBytes int64, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents:      documents,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleUpload handles POST /api/v1/documents. It accepts a multipart form
// with a "file" part or a JSON text document. By default embedding runs in
// the background and the response is 202; ?wait=true blocks until every
// chunk has been attempted and answers 201.
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	var (
		req ingestion.IngestRequest
		ok  bool
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, ok = h.readMultipart(w, r, log)
	} else {
		req, ok = h.readText(w, r, log)
	}
	if !ok {
		return
	}

	log.Info("document upload",
		zap.String("file_name", req.FileName),
		zap.Int("bytes", len(req.Data)),
		zap.String("subject", middleware.SubjectFromContext(ctx)))

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := h.documents.Ingest(ctx, req)
		if err != nil {
			HandleServiceError(w, err, log)
			return
		}
		if err := utils.WriteCreated(w, result); err != nil {
			log.Error("failed to write response", zap.Error(err))
		}
		return
	}

	doc, err := h.documents.IngestAsync(ctx, req)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}
	w.Header().Set("Location", "/api/v1/documents/"+doc.ID.String())
	if err := utils.WriteAccepted(w, doc); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

func (h *DocumentHandler) readMultipart(w http.ResponseWriter, r *http.Request, log *zap.Logger) (ingestion.IngestRequest, bool) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", nil)
			return ingestion.IngestRequest{}, false
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", nil)
			return ingestion.IngestRequest{}, false
		}
		log.Warn("invalid multipart form", zap.Error(err))
		_ = utils.WriteBadRequest(w, "invalid multipart form", nil)
		return ingestion.IngestRequest{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = utils.WriteBadRequest(w, "multipart field \"file\" is required", nil)
		return ingestion.IngestRequest{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Warn("failed to read upload", zap.Error(err))
		_ = utils.WriteBadRequest(w, "failed to read upload", nil)
		return ingestion.IngestRequest{}, false
	}

	return ingestion.IngestRequest{
		FileName:    filepath.Base(header.Filename),
		Path:        formValue(r.MultipartForm, "path"),
		ContentType: partContentType(header),
		Data:        data,
		Notes:       formValue(r.MultipartForm, "notes"),
		Details:     formValue(r.MultipartForm, "details"),
	}, true
}

func (h *DocumentHandler) readText(w http.ResponseWriter, r *http.Request, log *zap.Logger) (ingestion.IngestRequest, bool) {
	var body TextDocumentRequest
	if !decodeAndValidate(w, r, &body, log) {
		return ingestion.IngestRequest{}, false
	}
	return ingestion.IngestRequest{
		FileName:    body.FileName,
		Path:        body.Path,
		ContentType: body.ContentType,
		Data:        []byte(body.Text),
		Notes:       body.Notes,
		Details:     body.Details,
	}, true
}

// HandleList handles GET /api/v1/documents
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.documents.List(ctx, limit, offset)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}
	if err := utils.WriteOK(w, docs); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/documents/{id}
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "document id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	view, err := h.documents.Document(ctx, id)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}
	if err := utils.WriteOK(w, view); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/v1/documents/{id}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "document id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.store.DeleteDocument(ctx, id); err != nil {
		HandleServiceError(w, err, log)
		return
	}

	log.Info("document deleted",
		zap.String("document_id", id.String()),
		zap.String("subject", middleware.SubjectFromContext(ctx)))
	utils.WriteNoContent(w)
}

func formValue(form *multipart.Form, key string) string {
	if form == nil || len(form.Value[key]) == 0 {
		return ""
	}
	return strings.TrimSpace(form.Value[key][0])
}

// partContentType drops generic types so detection falls back to the extension
func partContentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}
