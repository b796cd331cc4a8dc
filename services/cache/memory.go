package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/upb/rag-retrieval/models"
)

// memoryEntry is a cache entry plus its LRU position
type memoryEntry struct {
	entry   *models.CacheEntry
	element *list.Element
}

// Memory is an in-process LRU cache with TTL
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry // Key: query text
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     Clock
	hits    uint64
	misses  uint64
}

var _ ResponseCache = (*Memory)(nil)

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithClock overrides the time source
func WithClock(now Clock) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates a cache holding at most maxSize entries
func NewMemory(maxSize int, ttl time.Duration, opts ...MemoryOption) *Memory {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup purges expired entries, then returns the entry for queryText
func (m *Memory) Lookup(_ context.Context, queryText string) (*models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired()

	e, exists := m.entries[queryText]
	if !exists {
		m.misses++
		return nil, false, nil
	}

	m.lruList.MoveToFront(e.element)
	m.hits++
	return e.entry, true, nil
}

// Store records an entry stamped with the current time
func (m *Memory) Store(_ context.Context, queryText, content string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := models.NewCacheEntry(queryText, content, embedding, m.now())

	if e, exists := m.entries[queryText]; exists {
		e.entry = entry
		m.lruList.MoveToFront(e.element)
		return nil
	}

	if m.lruList.Len() >= m.maxSize {
		m.evictLRU()
	}

	e := &memoryEntry{entry: entry}
	e.element = m.lruList.PushFront(queryText)
	m.entries[queryText] = e
	return nil
}

// Clear removes all entries
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	m.lruList.Init()
}

// Invalidate clears the cache
func (m *Memory) Invalidate(_ context.Context) error {
	m.Clear()
	return nil
}

// Stats represents cache statistics
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rate float64
	if total := m.hits + m.misses; total > 0 {
		rate = float64(m.hits) / float64(total)
	}
	return Stats{
		Size:    m.lruList.Len(),
		MaxSize: m.maxSize,
		Hits:    m.hits,
		Misses:  m.misses,
		HitRate: rate,
	}
}

// CleanupExpired removes all expired entries and returns how many were removed
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.purgeExpired()
}

// StartCleanupWorker periodically removes expired entries until ctx is done
func (m *Memory) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// purgeExpired must be called with the lock held
func (m *Memory) purgeExpired() int {
	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if e.entry.IsExpired(now, m.ttl) {
			m.lruList.Remove(e.element)
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// evictLRU must be called with the lock held
func (m *Memory) evictLRU() {
	back := m.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	m.lruList.Remove(back)
	delete(m.entries, key)
}
