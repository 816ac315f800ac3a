package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpratt/lifelogd/internal/storage"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}

func tsPtr(t *testing.T, s string) *time.Time {
	v := ts(t, s)
	return &v
}

func TestNextJoinsWithinThreshold(t *testing.T) {
	g := New(5 * time.Minute)

	// 10:00-10:02, then 10:03: a one-minute gap joins.
	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:02:00Z"))
	g.NoteConversation(1)
	second := g.Next(ts(t, "2025-06-01T10:03:00Z"), tsPtr(t, "2025-06-01T10:10:00Z"))
	g.NoteConversation(2)

	assert.NotEmpty(t, first.GroupID)
	assert.Equal(t, first.GroupID, second.GroupID)
	assert.Nil(t, second.Retro)

	// 10:20 is ten minutes past the previous end: fresh group.
	third := g.Next(ts(t, "2025-06-01T10:20:00Z"), tsPtr(t, "2025-06-01T10:25:00Z"))
	assert.NotEqual(t, first.GroupID, third.GroupID)
	assert.Nil(t, third.Retro)
}

func TestNextThresholdBoundary(t *testing.T) {
	g := New(5 * time.Minute)

	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:00:00Z"))
	g.NoteConversation(1)

	// A gap of exactly the threshold still joins.
	second := g.Next(ts(t, "2025-06-01T10:05:00Z"), tsPtr(t, "2025-06-01T10:05:00Z"))
	g.NoteConversation(2)
	assert.Equal(t, first.GroupID, second.GroupID)

	// One second past the threshold does not.
	third := g.Next(ts(t, "2025-06-01T10:10:01Z"), nil)
	assert.NotEqual(t, second.GroupID, third.GroupID)
}

func TestNextNegativeGapJoins(t *testing.T) {
	g := New(5 * time.Minute)

	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:30:00Z"))
	g.NoteConversation(1)

	// Overlapping span: starts before the previous end.
	second := g.Next(ts(t, "2025-06-01T10:15:00Z"), tsPtr(t, "2025-06-01T10:45:00Z"))
	assert.Equal(t, first.GroupID, second.GroupID)
}

func TestNextMissingEndUsesStart(t *testing.T) {
	g := New(5 * time.Minute)

	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), nil)
	g.NoteConversation(1)

	// Cursor advanced to the start time, so 10:04 joins but 10:06 would not.
	second := g.Next(ts(t, "2025-06-01T10:04:00Z"), nil)
	assert.Equal(t, first.GroupID, second.GroupID)
}

func TestNextRetroAfterObserveUngrouped(t *testing.T) {
	g := New(5 * time.Minute)

	// A settled conversation without a group id opens the window.
	g.Observe(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:02:00Z"), nil)
	g.NoteConversation(7)

	a := g.Next(ts(t, "2025-06-01T10:03:00Z"), nil)
	require.NotNil(t, a.Retro)
	assert.Equal(t, int64(7), a.Retro.ConversationID)
	assert.Equal(t, a.GroupID, a.Retro.GroupID)
}

func TestObserveExtendsSettledGroup(t *testing.T) {
	g := New(5 * time.Minute)
	settled := "group-settled"

	g.Observe(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:02:00Z"), &settled)
	g.NoteConversation(3)

	a := g.Next(ts(t, "2025-06-01T10:03:00Z"), nil)
	assert.Equal(t, settled, a.GroupID)
	assert.Nil(t, a.Retro)
}

func TestResumeContinuesAcrossRestart(t *testing.T) {
	g := New(5 * time.Minute)
	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:02:00Z"))
	g.NoteConversation(1)

	resumed := Resume(5*time.Minute, g.State())
	second := resumed.Next(ts(t, "2025-06-01T10:03:00Z"), nil)
	assert.Equal(t, first.GroupID, second.GroupID)

	// Past the threshold after resume starts fresh as usual.
	third := resumed.Next(ts(t, "2025-06-01T10:30:00Z"), nil)
	assert.NotEqual(t, first.GroupID, third.GroupID)
}

func TestRestoreRewindsCursor(t *testing.T) {
	g := New(5 * time.Minute)
	first := g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:02:00Z"))
	g.NoteConversation(1)

	checkpoint := g.State()
	_ = g.Next(ts(t, "2025-06-01T10:30:00Z"), tsPtr(t, "2025-06-01T10:40:00Z"))

	// The failed record must not have moved the cursor.
	g.Restore(checkpoint)
	second := g.Next(ts(t, "2025-06-01T10:03:00Z"), nil)
	assert.Equal(t, first.GroupID, second.GroupID)
}

func TestNewDefaultsGap(t *testing.T) {
	g := New(0)
	assert.Equal(t, DefaultGapThreshold, g.gap)
}

func TestStateRoundTrip(t *testing.T) {
	g := New(2 * time.Minute)
	g.Next(ts(t, "2025-06-01T10:00:00Z"), tsPtr(t, "2025-06-01T10:01:00Z"))
	g.NoteConversation(42)

	state := g.State()
	require.NotNil(t, state.LastEndTime)
	assert.Equal(t, ts(t, "2025-06-01T10:01:00Z"), *state.LastEndTime)
	assert.Equal(t, int64(42), state.LastConversationID)
	require.NotNil(t, state.CurrentGroupID)

	var zero storage.ClusterState
	g.Restore(zero)
	assert.Nil(t, g.lastEnd)
	assert.Nil(t, g.currentGroupID)
}
