// Package search ranks stored chunks against a query embedding by linear cosine scan.
package search

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services"
)

// Options controls a ranking pass
type Options struct {
	TopK      int
	Threshold float64
	// IncludeOptionalFields keeps header context, notes and details in results
	IncludeOptionalFields bool
	// QueryPseudo marks a query vector that came from the pseudo backend
	QueryPseudo bool
}

// Result is one ranked chunk
type Result struct {
	ChunkID       uuid.UUID          `json:"chunk_id"`
	DocumentID    uuid.UUID          `json:"document_id"`
	FileName      string             `json:"file_name"`
	Path          string             `json:"path"`
	ChunkIndex    int                `json:"chunk_index"`
	Content       string             `json:"content"`
	HeaderContext string             `json:"header_context,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Details       string             `json:"details,omitempty"`
	Score         float64            `json:"score"`
	MatchedFields []models.FieldKind `json:"matched_fields"`
	// Pseudo is set when the query or a matched field used a pseudo embedding
	Pseudo bool `json:"pseudo"`
}

// CosineSimilarity returns dot(a,b) / (|a|·|b|). Vectors of different length are
// an error; a zero-magnitude vector has similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, services.NewDomainError(services.ErrorTypeDimensionMismatch,
			fmt.Sprintf("cannot compare %d and %d dimensions", len(a), len(b)), nil).
			WithDetail("left", len(a)).
			WithDetail("right", len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Engine scores candidates; it holds no state besides the logger
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a ranking engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Rank scores every candidate as the maximum similarity over its field
// embeddings, drops scores below the threshold, sorts by score descending with
// ties broken by (document id, chunk index) ascending and returns the top K.
// A candidate whose dimensionality differs from the query is skipped.
func (e *Engine) Rank(query []float32, candidates []models.ChunkCandidate, opts Options) []Result {
	results := make([]Result, 0, len(candidates))
	skipped := 0

	for i := range candidates {
		c := &candidates[i]
		res, ok, err := e.score(query, c)
		if err != nil {
			skipped++
			e.logger.Warn("skipping candidate",
				zap.String("chunk_id", c.ChunkID.String()),
				zap.String("document_id", c.DocumentID.String()),
				zap.Error(err),
			)
			continue
		}
		if !ok || res.Score < opts.Threshold {
			continue
		}
		res.Pseudo = res.Pseudo || opts.QueryPseudo
		if !opts.IncludeOptionalFields {
			res.HeaderContext, res.Notes, res.Details = "", "", ""
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := compareUUID(a.DocumentID, b.DocumentID); c != 0 {
			return c < 0
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	e.logger.Debug("ranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("skipped", skipped),
		zap.Int("returned", len(results)),
	)
	return results
}

// score returns ok=false when the candidate has no usable embedding
func (e *Engine) score(query []float32, c *models.ChunkCandidate) (Result, bool, error) {
	best := math.Inf(-1)
	var (
		matched []models.FieldKind
		pseudo  bool
	)

	for _, field := range models.FieldKinds {
		emb, ok := c.Embeddings[field]
		if !ok || emb == nil {
			continue
		}
		if len(emb.Vector) != len(query) {
			return Result{}, false, fmt.Errorf("field %s: %w", field,
				services.NewDomainError(services.ErrorTypeDimensionMismatch, "embedding dimension mismatch", nil).
					WithDetail("query", len(query)).
					WithDetail("candidate", len(emb.Vector)))
		}
		if err := models.ValidateVector(emb.Vector); err != nil {
			e.logger.Warn("ignoring invalid field embedding",
				zap.String("chunk_id", c.ChunkID.String()),
				zap.String("field", string(field)),
				zap.Error(err),
			)
			continue
		}

		sim, err := CosineSimilarity(query, emb.Vector)
		if err != nil {
			return Result{}, false, err
		}
		switch {
		case sim > best:
			best = sim
			matched = []models.FieldKind{field}
			pseudo = emb.Pseudo
		case sim == best:
			matched = append(matched, field)
			pseudo = pseudo || emb.Pseudo
		}
	}

	if len(matched) == 0 {
		return Result{}, false, nil
	}

	return Result{
		ChunkID:       c.ChunkID,
		DocumentID:    c.DocumentID,
		FileName:      c.FileName,
		Path:          c.Path,
		ChunkIndex:    c.ChunkIndex,
		Content:       c.Content,
		HeaderContext: c.HeaderContext,
		Notes:         c.Notes,
		Details:       c.Details,
		Score:         best,
		MatchedFields: matched,
		Pseudo:        pseudo,
	}, true, nil
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
