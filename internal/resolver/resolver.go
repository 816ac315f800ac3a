// Package resolver reconstructs the context surrounding one conversation:
// either the full logical event it belongs to, or a time-windowed
// neighborhood of the same creator's conversations.
package resolver

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpratt/lifelogd/internal/storage"
)

// DefaultWindow bounds the fallback neighborhood lookup on either side of
// the anchor conversation.
const DefaultWindow = 30 * time.Minute

// Resolver answers context queries against the store. Reads only.
type Resolver struct {
	store  *storage.Store
	window time.Duration
}

// Context is the reconstructed surroundings of one conversation. For a
// grouped anchor, Event holds every conversation of the logical event in
// chronological order (the anchor included) and Transcript concatenates
// their utterances. For an ungrouped anchor, Preceding and Succeeding hold
// the same-creator window neighbors, the anchor appears in neither, and
// Transcript covers the anchor alone.
type Context struct {
	Anchor     storage.Conversation
	Event      []storage.Conversation
	Preceding  []storage.Conversation
	Succeeding []storage.Conversation
	Transcript string
}

// New builds a resolver. A non-positive window falls back to the default.
func New(store *storage.Store, window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Resolver{store: store, window: window}
}

// Resolve reconstructs the context around the conversation with the given
// surrogate id.
func (r *Resolver) Resolve(ctx context.Context, conversationID int64) (*Context, error) {
	anchor, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if anchor.LogicalEventID != nil {
		return r.resolveEvent(ctx, anchor)
	}
	return r.resolveWindow(ctx, anchor)
}

func (r *Resolver) resolveEvent(ctx context.Context, anchor storage.Conversation) (*Context, error) {
	event, err := r.store.ListConversationsByLogicalEvent(ctx, *anchor.LogicalEventID)
	if err != nil {
		return nil, err
	}

	transcript, err := r.transcript(ctx, event)
	if err != nil {
		return nil, err
	}

	return &Context{
		Anchor:     anchor,
		Event:      event,
		Transcript: transcript,
	}, nil
}

func (r *Resolver) resolveWindow(ctx context.Context, anchor storage.Conversation) (*Context, error) {
	end := anchor.StartTime
	if anchor.EndTime != nil {
		end = *anchor.EndTime
	}

	// The two window lookups are independent reads; run them concurrently.
	var preceding, succeeding []storage.Conversation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		preceding, err = r.store.ListConversationsByCreatorWindow(
			gctx, anchor.CreatorID, anchor.StartTime.Add(-r.window), anchor.StartTime)
		return err
	})
	g.Go(func() error {
		var err error
		succeeding, err = r.store.ListConversationsByCreatorWindow(
			gctx, anchor.CreatorID, end, end.Add(r.window))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The anchor is reported once, as the anchor; a conversation spanning
	// both window edges must not appear on both sides either.
	seen := map[int64]bool{anchor.ID: true}
	preceding = dedupe(preceding, seen)
	succeeding = dedupe(succeeding, seen)

	transcript, err := r.transcript(ctx, []storage.Conversation{anchor})
	if err != nil {
		return nil, err
	}

	return &Context{
		Anchor:     anchor,
		Preceding:  preceding,
		Succeeding: succeeding,
		Transcript: transcript,
	}, nil
}

func dedupe(conversations []storage.Conversation, seen map[int64]bool) []storage.Conversation {
	out := conversations[:0]
	for _, c := range conversations {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// transcript concatenates utterance text across the conversations in order,
// prefixing each line with the speaker's name when one is attached.
func (r *Resolver) transcript(ctx context.Context, conversations []storage.Conversation) (string, error) {
	speakers, err := r.store.ListSpeakers(ctx)
	if err != nil {
		return "", err
	}
	names := make(map[int64]string, len(speakers))
	for _, sp := range speakers {
		names[sp.ID] = sp.Name
	}

	var b strings.Builder
	for _, c := range conversations {
		utterances, err := r.store.ListUtterancesByConversation(ctx, c.ID)
		if err != nil {
			return "", err
		}
		for _, u := range utterances {
			if u.SpeakerID != nil {
				if name, ok := names[*u.SpeakerID]; ok && name != "" {
					b.WriteString(name)
					b.WriteString(": ")
				}
			}
			b.WriteString(u.Text)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
