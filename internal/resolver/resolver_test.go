package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpratt/lifelogd/internal/storage"
)

func setupResolver(t *testing.T) (*Resolver, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, 30*time.Minute), store
}

func seedConversation(t *testing.T, store *storage.Store, ext, start string, group *string) storage.Conversation {
	t.Helper()
	startTime, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	end := startTime.Add(2 * time.Minute)
	conv, err := store.UpsertConversationByExternalID(context.Background(), storage.Conversation{
		ExternalLogID:  ext,
		Title:          "Lifelog " + ext,
		StartTime:      startTime,
		EndTime:        &end,
		CreatorID:      "user",
		LogicalEventID: group,
	})
	require.NoError(t, err)
	return conv
}

func groupPtr(s string) *string { return &s }

func TestResolveEvent(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	a := seedConversation(t, store, "ll-a", "2025-06-01T10:00:00Z", groupPtr("event-1"))
	b := seedConversation(t, store, "ll-b", "2025-06-01T10:03:00Z", groupPtr("event-1"))
	seedConversation(t, store, "ll-c", "2025-06-01T12:00:00Z", groupPtr("event-2"))

	sp, err := store.UpsertSpeakerByExternalID(ctx, storage.Speaker{ExternalID: "spk-alice", Name: "Alice"})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceUtterances(ctx, a.ID, []storage.Utterance{
		{Text: "first part", Seq: 0, SpeakerID: &sp.ID},
	}))
	require.NoError(t, store.ReplaceUtterances(ctx, b.ID, []storage.Utterance{
		{Text: "second part", Seq: 0},
	}))

	// Resolving from the second chunk still returns the whole event in order.
	got, err := r.Resolve(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got.Event, 2)
	assert.Equal(t, a.ID, got.Event[0].ID)
	assert.Equal(t, b.ID, got.Event[1].ID)
	assert.Empty(t, got.Preceding)
	assert.Empty(t, got.Succeeding)
	assert.Equal(t, "Alice: first part\nsecond part\n", got.Transcript)
}

func TestResolveWindow(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	before := seedConversation(t, store, "ll-before", "2025-06-01T09:45:00Z", nil)
	anchor := seedConversation(t, store, "ll-anchor", "2025-06-01T10:00:00Z", nil)
	after := seedConversation(t, store, "ll-after", "2025-06-01T10:15:00Z", nil)
	seedConversation(t, store, "ll-far", "2025-06-01T14:00:00Z", nil)

	require.NoError(t, store.ReplaceUtterances(ctx, anchor.ID, []storage.Utterance{
		{Text: "anchor text", Seq: 0},
	}))
	require.NoError(t, store.ReplaceUtterances(ctx, before.ID, []storage.Utterance{
		{Text: "earlier text", Seq: 0},
	}))

	got, err := r.Resolve(ctx, anchor.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Event)
	require.Len(t, got.Preceding, 1)
	assert.Equal(t, before.ID, got.Preceding[0].ID)
	require.Len(t, got.Succeeding, 1)
	assert.Equal(t, after.ID, got.Succeeding[0].ID)

	// Window transcripts cover the anchor alone.
	assert.Equal(t, "anchor text\n", got.Transcript)
}

func TestResolveWindowExcludesOtherCreators(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	anchor := seedConversation(t, store, "ll-anchor", "2025-06-01T10:00:00Z", nil)

	_, err := store.UpsertConversationByExternalID(ctx, storage.Conversation{
		ExternalLogID: "ll-other",
		StartTime:     anchor.StartTime.Add(5 * time.Minute),
		CreatorID:     "someone-else",
	})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, anchor.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Preceding)
	assert.Empty(t, got.Succeeding)
}

func TestResolveWindowNoDuplicateAnchor(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	// The anchor's own start falls inside both query windows; it must be
	// reported only as the anchor.
	anchor := seedConversation(t, store, "ll-anchor", "2025-06-01T10:00:00Z", nil)

	got, err := r.Resolve(ctx, anchor.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Preceding)
	assert.Empty(t, got.Succeeding)
	assert.Equal(t, anchor.ID, got.Anchor.ID)
}

func TestResolveNotFound(t *testing.T) {
	r, _ := setupResolver(t)

	_, err := r.Resolve(context.Background(), 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
