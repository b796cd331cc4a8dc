package models

import "github.com/google/uuid"

// ChunkCandidate is a chunk materialised for ranking: its texts, its owning
// document's identifying metadata and every stored field embedding.
type ChunkCandidate struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	ChunkIndex    int
	FileName      string
	Path          string
	Content       string
	HeaderContext string
	Notes         string
	Details       string
	Embeddings    map[FieldKind]*Embedding
}
