// Package cluster assigns logical event ids to conversations. A logical event
// is one continuous real-world occurrence (a meeting, say) that the source
// split into several transcript chunks; conversations whose time spans sit
// within the gap threshold of each other share one id.
package cluster

import (
	"time"

	"github.com/google/uuid"

	"github.com/mpratt/lifelogd/internal/storage"
)

// DefaultGapThreshold is the largest silence between two conversations that
// still counts as one logical event.
const DefaultGapThreshold = 5 * time.Minute

// Assignment is the grouping decision for one conversation. When joining the
// current group minted a fresh id, Retro names the previous conversation that
// must be relabeled with the same id.
type Assignment struct {
	GroupID string
	Retro   *Retro
}

// Retro is a retroactive relabel of an earlier conversation.
type Retro struct {
	ConversationID int64
	GroupID        string
}

// Grouper is the stateful single-pass clustering cursor. It is not safe for
// concurrent use; the ingestion pipeline drives it from one goroutine over a
// batch pre-sorted by start time.
type Grouper struct {
	gap            time.Duration
	lastEnd        *time.Time
	lastConvID     int64
	currentGroupID *string
}

// New returns a Grouper with the given gap threshold. A non-positive
// threshold falls back to the default.
func New(gap time.Duration) *Grouper {
	if gap <= 0 {
		gap = DefaultGapThreshold
	}
	return &Grouper{gap: gap}
}

// Resume seeds the cursor from persisted state so that clustering continues
// across batches and process restarts.
func Resume(gap time.Duration, state storage.ClusterState) *Grouper {
	g := New(gap)
	g.lastEnd = state.LastEndTime
	g.lastConvID = state.LastConversationID
	g.currentGroupID = state.CurrentGroupID
	return g
}

// State returns the cursor for persistence.
func (g *Grouper) State() storage.ClusterState {
	return storage.ClusterState{
		LastEndTime:        g.lastEnd,
		LastConversationID: g.lastConvID,
		CurrentGroupID:     g.currentGroupID,
	}
}

// Restore rewinds the cursor to a previously captured state. The pipeline
// uses it when a record's transaction fails: a record that did not commit
// must not advance clustering.
func (g *Grouper) Restore(state storage.ClusterState) {
	g.lastEnd = state.LastEndTime
	g.lastConvID = state.LastConversationID
	g.currentGroupID = state.CurrentGroupID
}

// effectiveEnd is the end time, or the start time when the source sent none.
func effectiveEnd(start time.Time, end *time.Time) time.Time {
	if end != nil {
		return *end
	}
	return start
}

// Next decides the group for a conversation at the given span and advances
// the time cursor. A gap at or below the threshold joins the current group;
// a negative gap (out-of-order overlapping records) also joins rather than
// being rejected. Anything else starts a fresh group.
//
// The caller must follow up with NoteConversation once the conversation's
// surrogate id is known (it isn't, before the upsert commits).
func (g *Grouper) Next(start time.Time, end *time.Time) Assignment {
	var a Assignment

	if g.lastEnd != nil && start.Sub(*g.lastEnd) <= g.gap {
		if g.currentGroupID == nil {
			// The previous conversation opened this group without an
			// id of its own; mint one and relabel it too.
			id := uuid.NewString()
			g.currentGroupID = &id
			if g.lastConvID != 0 {
				a.Retro = &Retro{ConversationID: g.lastConvID, GroupID: id}
			}
		}
		a.GroupID = *g.currentGroupID
	} else {
		id := uuid.NewString()
		g.currentGroupID = &id
		a.GroupID = id
	}

	g.advance(start, end)
	return a
}

// Observe advances the cursor past a conversation whose group id is already
// settled (an unchanged re-ingest keeps its stored id — established groups
// are never split, only extended). Subsequent conversations may still join
// that group.
func (g *Grouper) Observe(start time.Time, end *time.Time, groupID *string) {
	g.currentGroupID = groupID
	g.advance(start, end)
}

// NoteConversation records the surrogate id of the conversation most recently
// passed to Next or Observe, so a later join can relabel it retroactively.
func (g *Grouper) NoteConversation(id int64) {
	g.lastConvID = id
}

func (g *Grouper) advance(start time.Time, end *time.Time) {
	e := effectiveEnd(start, end)
	g.lastEnd = &e
}
