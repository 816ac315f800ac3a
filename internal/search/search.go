// Package search is the read-side full-text query layer, with an optional
// LRU cache over recent queries.
package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mpratt/lifelogd/internal/storage"
)

const (
	// DefaultLimit caps result counts when the caller doesn't.
	DefaultLimit = 25
	// DefaultCacheTTL bounds how stale a cached response may get.
	DefaultCacheTTL = 60 * time.Second

	cacheSize = 256
)

// Request contains parameters for a search operation.
type Request struct {
	Query    string
	Limit    int
	UseCache bool
	CacheTTL time.Duration
}

// Response contains search results and metadata.
type Response struct {
	Results  []storage.SearchHit
	CacheHit bool
	Duration time.Duration
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs full-text queries against the store. Safe for concurrent
// use; the cache is its only mutable state and is internally synchronized.
type Searcher struct {
	store *storage.Store
	cache *lru.Cache[[32]byte, cacheEntry]
}

// New creates a Searcher with a bounded query cache.
func New(store *storage.Store) (*Searcher, error) {
	cache, err := lru.New[[32]byte, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &Searcher{store: store, cache: cache}, nil
}

// Search runs a full-text query. An empty or whitespace-only query yields an
// empty response with no error, matching the store's contract.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	key := cacheKey(req.Query, req.Limit)
	if req.UseCache {
		if entry, ok := s.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
			cached := *entry.response
			cached.CacheHit = true
			cached.Duration = time.Since(started)
			return &cached, nil
		}
	}

	hits, err := s.store.SearchUtterances(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	resp := &Response{Results: hits, Duration: time.Since(started)}
	if req.UseCache {
		s.cache.Add(key, cacheEntry{response: resp, expiresAt: time.Now().Add(req.CacheTTL)})
	}
	return resp, nil
}

// Invalidate drops all cached responses. Call after a write when cached
// staleness is unacceptable.
func (s *Searcher) Invalidate() {
	s.cache.Purge()
}

func cacheKey(query string, limit int) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d", query, limit)))
}
