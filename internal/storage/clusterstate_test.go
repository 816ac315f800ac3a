package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterStateRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	_, err := store.GetClusterState(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	end := mustTime(t, "2025-06-01T10:02:00Z")
	require.NoError(t, store.SaveClusterState(ctx, ClusterState{
		LastEndTime:        &end,
		LastConversationID: 42,
		CurrentGroupID:     strPtr("group-1"),
	}))

	state, err := store.GetClusterState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.LastEndTime)
	assert.True(t, state.LastEndTime.Equal(end))
	assert.Equal(t, int64(42), state.LastConversationID)
	require.NotNil(t, state.CurrentGroupID)
	assert.Equal(t, "group-1", *state.CurrentGroupID)

	// Overwrite in place; the cursor is a single row.
	require.NoError(t, store.SaveClusterState(ctx, ClusterState{LastConversationID: 43}))
	state, err = store.GetClusterState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.LastEndTime)
	assert.Equal(t, int64(43), state.LastConversationID)
	assert.Nil(t, state.CurrentGroupID)

	var rows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM cluster_state").Scan(&rows))
	assert.Equal(t, 1, rows)
}
