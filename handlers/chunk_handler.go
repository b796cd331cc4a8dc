package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/internal/observability"
	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/utils"
)

// UpdateChunkRequest replaces the text of one chunk field. Empty text clears
// an optional field.
type UpdateChunkRequest struct {
	Field string  `json:"field" validate:"required,oneof=content header_context notes details"`
	Text  *string `json:"text" validate:"required"`
}

// UpdateChunkResponse reports whether the field's embedding was regenerated
type UpdateChunkResponse struct {
	ChunkID  uuid.UUID        `json:"chunk_id"`
	Field    models.FieldKind `json:"field"`
	Embedded bool             `json:"embedded"`
	Pseudo   bool             `json:"pseudo"`
	Error    string           `json:"error,omitempty"`
}

// ChunkHandler handles chunk administration
type ChunkHandler struct {
	store  ChunkStore
	logger *zap.Logger
}

// NewChunkHandler creates a new ChunkHandler
func NewChunkHandler(store ChunkStore, logger *zap.Logger) *ChunkHandler {
	return &ChunkHandler{
		store:  store,
		logger: logger,
	}
}

// HandleUpdate handles PATCH /api/v1/chunks/{id}. A field whose embedding
// could not be regenerated still answers 200 with embedded=false.
func (h *ChunkHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "chunk id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var req UpdateChunkRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	field := models.FieldKind(req.Field)
	status, err := h.store.UpdateField(ctx, id, field, *req.Text)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}

	resp := UpdateChunkResponse{
		ChunkID:  id,
		Field:    field,
		Embedded: status.Stored,
		Pseudo:   status.Pseudo,
	}
	if status.Err != nil {
		resp.Error = status.Err.Error()
	}
	if err := utils.WriteOK(w, resp); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/v1/chunks/{id}
func (h *ChunkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "chunk id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.store.DeleteChunk(ctx, id); err != nil {
		HandleServiceError(w, err, log)
		return
	}
	utils.WriteNoContent(w)
}
