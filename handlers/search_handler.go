package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/internal/observability"
	"github.com/upb/rag-retrieval/services/retrieval"
	"github.com/upb/rag-retrieval/utils"
)

// SearchHandler serves similarity search and grounded answers
type SearchHandler struct {
	service SearchService
	logger  *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(service SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSearch handles POST /api/v1/search
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	var req retrieval.SearchRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	resp, err := h.service.Search(ctx, req)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}

	log.Debug("search served",
		zap.Int("results", len(resp.Results)),
		zap.Bool("cached", resp.Cached))

	if err := utils.WriteOK(w, resp); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

// HandleAnswer handles POST /api/v1/answer
func (h *SearchHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.WithRequestID(ctx, h.logger)

	var req retrieval.AnswerRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	resp, err := h.service.Answer(ctx, req)
	if err != nil {
		HandleServiceError(w, err, log)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}
