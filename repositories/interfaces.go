package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/rag-retrieval/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DocumentRepository handles document rows
type DocumentRepository interface {
	// Create inserts a new document
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	// List returns documents newest first
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)

	// UpdateStatus records the ingestion outcome
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus, chunkCount int, errMsg *string) error

	// Delete removes a document; chunks and embeddings follow by cascade
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkRepository handles chunk rows
type ChunkRepository interface {
	// CreateBatch inserts the chunks of one document
	CreateBatch(ctx context.Context, chunks []*models.Chunk) error

	// GetByID retrieves a chunk by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chunk, error)

	// ListByDocument returns a document's chunks in index order
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Chunk, error)

	// UpdateField replaces the text of one field
	UpdateField(ctx context.Context, id uuid.UUID, field models.FieldKind, text string) error

	// Delete removes a chunk; its embeddings follow by cascade
	Delete(ctx context.Context, id uuid.UUID) error

	// CompactIndexes shifts the indices after removedIndex down by one so a
	// document's indices stay contiguous after a chunk is deleted
	CompactIndexes(ctx context.Context, documentID uuid.UUID, removedIndex int) error

	// ScanCandidates returns every chunk with its document metadata and decoded
	// field embeddings. Rows whose vector cannot be decoded are returned
	// without that field and reported through skipped.
	ScanCandidates(ctx context.Context) (candidates []models.ChunkCandidate, skipped int, err error)
}

// EmbeddingRepository handles per-field embedding rows
type EmbeddingRepository interface {
	// Upsert inserts or overwrites the embedding of (chunk, field)
	Upsert(ctx context.Context, emb *models.Embedding) error

	// ListByChunk returns every stored field embedding of a chunk
	ListByChunk(ctx context.Context, chunkID uuid.UUID) ([]*models.Embedding, error)

	// DeleteField removes the embedding of one field
	DeleteField(ctx context.Context, chunkID uuid.UUID, field models.FieldKind) error
}

// CacheRepository handles response cache rows
type CacheRepository interface {
	// GetLatest returns the newest entry for exactly queryText
	GetLatest(ctx context.Context, queryText string) (*models.CacheEntry, error)

	// Replace removes older entries for the query and inserts entry
	Replace(ctx context.Context, entry *models.CacheEntry) error

	// DeleteExpired removes entries created at or before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAll empties the cache
	DeleteAll(ctx context.Context) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Documents  DocumentRepository
	Chunks     ChunkRepository
	Embeddings EmbeddingRepository
	Cache      CacheRepository
}
