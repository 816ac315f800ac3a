package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpratt/lifelogd/internal/storage"
)

func setupSearcher(t *testing.T) (*Searcher, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s, err := New(store)
	require.NoError(t, err)
	return s, store
}

func seedUtterances(t *testing.T, store *storage.Store, texts ...string) {
	t.Helper()
	ctx := context.Background()
	start, err := time.Parse(time.RFC3339, "2025-06-01T10:00:00Z")
	require.NoError(t, err)
	conv, err := store.UpsertConversationByExternalID(ctx, storage.Conversation{
		ExternalLogID: "ll-001",
		StartTime:     start,
	})
	require.NoError(t, err)

	batch := make([]storage.Utterance, 0, len(texts))
	for i, text := range texts {
		batch = append(batch, storage.Utterance{Text: text, Seq: i})
	}
	require.NoError(t, store.ReplaceUtterances(ctx, conv.ID, batch))
}

func TestSearch(t *testing.T) {
	s, store := setupSearcher(t)
	seedUtterances(t, store, "remember to water the plants", "the deploy went fine")

	resp, err := s.Search(context.Background(), Request{Query: "deploy"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "the deploy went fine", resp.Results[0].Text)
	assert.False(t, resp.CacheHit)
}

func TestSearchEmptyQuery(t *testing.T) {
	s, _ := setupSearcher(t)

	resp, err := s.Search(context.Background(), Request{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchCacheHit(t *testing.T) {
	s, store := setupSearcher(t)
	seedUtterances(t, store, "cache me if you can")

	ctx := context.Background()
	req := Request{Query: "cache", UseCache: true, CacheTTL: time.Minute}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
}

func TestSearchCacheInvalidate(t *testing.T) {
	s, store := setupSearcher(t)
	seedUtterances(t, store, "cache me if you can")

	ctx := context.Background()
	req := Request{Query: "cache", UseCache: true, CacheTTL: time.Minute}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)

	s.Invalidate()

	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestSearchCacheKeyedByLimit(t *testing.T) {
	s, store := setupSearcher(t)
	seedUtterances(t, store, "alpha report", "alpha summary")

	ctx := context.Background()
	wide, err := s.Search(ctx, Request{Query: "alpha", Limit: 10, UseCache: true})
	require.NoError(t, err)
	assert.Len(t, wide.Results, 2)

	// A different limit is a different cache entry, not a stale hit.
	narrow, err := s.Search(ctx, Request{Query: "alpha", Limit: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, narrow.CacheHit)
	assert.Len(t, narrow.Results, 1)
}

func TestSearchNoCacheByDefault(t *testing.T) {
	s, store := setupSearcher(t)
	seedUtterances(t, store, "one of a kind")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp, err := s.Search(ctx, Request{Query: "kind"})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	}
}
