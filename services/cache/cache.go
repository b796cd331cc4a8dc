// Package cache holds previously computed query results for a short TTL.
// Matching is exact on the query text; the newest entry for a query wins and
// expired entries are purged before every lookup, so they are never returned.
package cache

import (
	"context"
	"time"

	"github.com/upb/rag-retrieval/models"
)

// DefaultTTL is how long an entry stays valid
const DefaultTTL = time.Hour

// ResponseCache is implemented by the in-memory and postgres caches
type ResponseCache interface {
	// Lookup returns the newest unexpired entry stored for exactly queryText
	Lookup(ctx context.Context, queryText string) (*models.CacheEntry, bool, error)

	// Store records content for queryText, replacing older entries
	Store(ctx context.Context, queryText, content string, embedding []float32) error

	// Invalidate drops every entry; called after chunks change or disappear
	Invalidate(ctx context.Context) error
}

// Clock returns the current time
type Clock func() time.Time
