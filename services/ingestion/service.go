// Package ingestion turns an uploaded file into a stored, embedded document.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/repositories"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/chunker"
	"github.com/upb/rag-retrieval/services/embedding"
	"github.com/upb/rag-retrieval/services/normalize"
)

const (
	defaultWorkers      = 4
	defaultAsyncTimeout = 30 * time.Minute
)

// ChunkEmbedder embeds the fields of one chunk; *embedding.Store satisfies it
type ChunkEmbedder interface {
	EmbedChunk(ctx context.Context, chunk *models.Chunk) *embedding.ChunkReport
}

// IngestRequest is one uploaded file
type IngestRequest struct {
	FileName    string
	Path        string
	ContentType string
	Data        []byte
	// Notes and Details are copied onto every chunk of the document
	Notes   string
	Details string
}

// IngestResult summarises a finished ingestion
type IngestResult struct {
	DocumentID    uuid.UUID             `json:"document_id"`
	Status        models.DocumentStatus `json:"status"`
	ChunkCount    int                   `json:"chunk_count"`
	FieldFailures int                   `json:"field_failures"`
	Pseudo        bool                  `json:"pseudo"`
}

// Config tunes the service
type Config struct {
	// Workers bounds how many chunks are embedded at once
	Workers      int
	AsyncTimeout time.Duration
}

// Service runs ingestion
type Service struct {
	documents repositories.DocumentRepository
	chunks    repositories.ChunkRepository
	tx        repositories.TransactionManager
	chunker   *chunker.Chunker
	embedder  ChunkEmbedder
	config    Config
	logger    *zap.Logger

	inflight sync.WaitGroup
}

// NewService creates a new ingestion service
func NewService(
	repos *repositories.Repositories,
	tx repositories.TransactionManager,
	c *chunker.Chunker,
	embedder ChunkEmbedder,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	if config.AsyncTimeout <= 0 {
		config.AsyncTimeout = defaultAsyncTimeout
	}
	return &Service{
		documents: repos.Documents,
		chunks:    repos.Chunks,
		tx:        tx,
		chunker:   c,
		embedder:  embedder,
		config:    config,
		logger:    logger,
	}
}

// Ingest normalises, chunks, stores and embeds a file, returning once every
// chunk has been attempted
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	doc, chunks, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.embedAll(ctx, doc, chunks)
}

// IngestAsync stores the document and its chunks, then embeds them in the
// background. The returned document stays in the processing state until
// every chunk has been attempted.
func (s *Service) IngestAsync(ctx context.Context, req IngestRequest) (*models.Document, error) {
	doc, chunks, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.AsyncTimeout)
		defer cancel()

		if _, err := s.embedAll(bgCtx, doc, chunks); err != nil {
			s.logger.Error("background ingestion failed",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err),
			)
		}
	}()

	return doc, nil
}

// Wait blocks until background ingestions finish or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// prepare creates the document and all of its chunks in one transaction, so
// chunk creation always precedes embedding
func (s *Service) prepare(ctx context.Context, req IngestRequest) (*models.Document, []*models.Chunk, error) {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, nil, services.WrapValidation("file name is required", services.ErrInvalidInput)
	}
	path := req.Path
	if path == "" {
		path = fileName
	}
	fileName = filepath.Base(fileName)

	text, err := normalize.Normalize(req.ContentType, fileName, req.Data)
	if err != nil {
		return nil, nil, err
	}

	doc := models.NewDocument(fileName, path, req.ContentType, text)
	pieces := s.chunker.Split(text, chunker.Extras{Notes: req.Notes, Details: req.Details})

	chunks := make([]*models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.NewChunk(doc.ID, p.Index, p.Content, p.HeaderContext, p.Notes, p.Details)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.documents.Create(ctx, doc); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return s.chunks.CreateBatch(ctx, chunks)
	})
	if err != nil {
		return nil, nil, services.WrapInternal("failed to store document", err)
	}

	s.logger.Info("document stored",
		zap.String("document_id", doc.ID.String()),
		zap.String("file_name", doc.FileName),
		zap.Int("chunks", len(chunks)),
	)
	return doc, chunks, nil
}

// embedAll embeds every chunk with bounded concurrency and records the
// outcome. A document is marked failed only when it has chunks and none of
// them got a content embedding.
func (s *Service) embedAll(ctx context.Context, doc *models.Document, chunks []*models.Chunk) (*IngestResult, error) {
	start := time.Now()
	reports := make([]*embedding.ChunkReport, len(chunks))

	sem := make(chan struct{}, s.config.Workers)
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, chunk *models.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			reports[i] = s.embedder.EmbedChunk(ctx, chunk)
		}(i, chunk)
	}
	wg.Wait()

	result := &IngestResult{DocumentID: doc.ID, ChunkCount: len(chunks), Status: models.DocumentStatusReady}
	withContent := 0
	for _, r := range reports {
		result.FieldFailures += len(r.Failures())
		if r.Pseudo() {
			result.Pseudo = true
		}
		if r.Stored(models.FieldContent) {
			withContent++
		}
	}

	var errMsg *string
	if len(chunks) > 0 && withContent == 0 {
		result.Status = models.DocumentStatusFailed
		msg := fmt.Sprintf("no content embedding could be generated for any of %d chunks", len(chunks))
		errMsg = &msg
	}

	// the request context may already be gone; the status must still land
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.documents.UpdateStatus(statusCtx, doc.ID, result.Status, len(chunks), errMsg); err != nil {
		return nil, services.WrapInternal("failed to record ingestion status", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("chunks_with_content", withContent),
		zap.Int("field_failures", result.FieldFailures),
		zap.Bool("pseudo", result.Pseudo),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
