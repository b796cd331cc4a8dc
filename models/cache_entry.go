package models

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is a stored query result. It is valid only while now - CreatedAt < ttl.
type CacheEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	QueryText string    `json:"query_text" db:"query_text"`
	Content   string    `json:"content" db:"content"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the CacheEntry model
func (CacheEntry) TableName() string {
	return "response_cache"
}

// IsExpired reports whether the entry is no longer valid at now
func (e *CacheEntry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) >= ttl
}

// NewCacheEntry creates an entry stamped with createdAt
func NewCacheEntry(queryText, content string, embedding []float32, createdAt time.Time) *CacheEntry {
	return &CacheEntry{
		ID:        uuid.New(),
		QueryText: queryText,
		Content:   content,
		Embedding: embedding,
		CreatedAt: createdAt,
	}
}
