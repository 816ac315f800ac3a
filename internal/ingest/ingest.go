// Package ingest orchestrates one fetch batch end to end: raw lifelog records
// in, durable clustered searchable conversations out.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpratt/lifelogd/internal/cluster"
	"github.com/mpratt/lifelogd/internal/storage"
	"github.com/mpratt/lifelogd/pkg/types"
)

// Pipeline ingests batches sequentially. Clustering depends on processing
// order, so concurrent Ingest calls are not supported; callers serialize.
type Pipeline struct {
	store   *storage.Store
	grouper *cluster.Grouper
	log     zerolog.Logger
}

// Result summarizes one batch. Per-record failures are collected here rather
// than aborting the batch; committed siblings stay committed.
type Result struct {
	Ingested int
	Skipped  int
	Failed   int
	Errors   []RecordError
	Duration time.Duration
}

// RecordError identifies which record failed, so the caller can retry it.
type RecordError struct {
	ExternalLogID string
	Err           error
}

// New builds a pipeline, resuming clustering from the persisted cursor.
func New(ctx context.Context, store *storage.Store, gapThreshold time.Duration, log zerolog.Logger) (*Pipeline, error) {
	state, err := store.GetClusterState(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load cluster state: %w", err)
	}
	return &Pipeline{
		store:   store,
		grouper: cluster.Resume(gapThreshold, state),
		log:     log,
	}, nil
}

type parsedRecord struct {
	raw   types.RawLifelog
	start time.Time
	end   *time.Time
}

// Ingest processes one batch: unparseable records are skipped and logged, the
// rest are sorted by start time and persisted in order, one transaction per
// record. Only ErrStorageUnavailable halts the batch; re-running the same
// batch is a no-op for records that already committed.
func (p *Pipeline) Ingest(ctx context.Context, batch []types.RawLifelog) (*Result, error) {
	started := time.Now()
	result := &Result{}

	parsed := make([]parsedRecord, 0, len(batch))
	for _, raw := range batch {
		if raw.ID == "" {
			p.log.Warn().Msg("skipping record without external id")
			result.Skipped++
			continue
		}
		start, end, err := raw.Span()
		if err != nil {
			p.log.Warn().Str("external_log_id", raw.ID).Err(err).Msg("skipping record with bad timestamp")
			result.Skipped++
			continue
		}
		parsed = append(parsed, parsedRecord{raw: raw, start: start, end: end})
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].start.Before(parsed[j].start)
	})

	for _, rec := range parsed {
		if err := ctx.Err(); err != nil {
			p.persistClusterState(ctx)
			return result, err
		}

		if err := p.ingestRecord(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrStorageUnavailable) {
				p.persistClusterState(ctx)
				return result, fmt.Errorf("record %s: %w", rec.raw.ID, err)
			}
			p.log.Error().Str("external_log_id", rec.raw.ID).Err(err).Msg("record failed")
			result.Failed++
			result.Errors = append(result.Errors, RecordError{ExternalLogID: rec.raw.ID, Err: err})
			continue
		}
		result.Ingested++
	}

	p.persistClusterState(ctx)
	result.Duration = time.Since(started)
	p.log.Info().
		Int("ingested", result.Ingested).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("batch ingested")
	return result, nil
}

// ingestRecord persists one record as a single transaction: conversation
// upsert, retroactive group relabel if clustering calls for one, speaker
// resolution, utterance batch.
func (p *Pipeline) ingestRecord(ctx context.Context, rec parsedRecord) error {
	existing, err := p.store.GetConversationByExternalID(ctx, rec.raw.ID)
	haveExisting := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	// Conservative recomputation: an already-grouped conversation whose
	// span did not move keeps its id. Its group stays current, so later
	// records may still extend it; it is never split.
	var assign cluster.Assignment
	checkpoint := p.grouper.State()
	if haveExisting && existing.LogicalEventID != nil && spanUnchanged(existing, rec) {
		assign.GroupID = *existing.LogicalEventID
		p.grouper.Observe(rec.start, rec.end, existing.LogicalEventID)
	} else {
		assign = p.grouper.Next(rec.start, rec.end)
	}

	var storedID int64
	err = p.store.WithTx(ctx, func(tx *storage.Tx) error {
		conv := storage.Conversation{
			ExternalLogID:  rec.raw.ID,
			Title:          rec.raw.Title,
			StartTime:      rec.start,
			EndTime:        rec.end,
			CreatorID:      rec.raw.Creator,
			RawText:        rec.raw.Text,
			LogicalEventID: &assign.GroupID,
		}
		stored, err := tx.UpsertConversationByExternalID(ctx, conv)
		if err != nil {
			return err
		}
		storedID = stored.ID

		if assign.Retro != nil && assign.Retro.ConversationID != stored.ID {
			if err := tx.AssignLogicalEvent(ctx, assign.Retro.ConversationID, assign.Retro.GroupID); err != nil &&
				!errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

		speakerIDs, err := p.resolveSpeakers(ctx, tx, rec.raw.Contents)
		if err != nil {
			return err
		}

		return tx.ReplaceUtterances(ctx, stored.ID, buildUtterances(rec, speakerIDs))
	})
	if err != nil {
		p.grouper.Restore(checkpoint)
		return err
	}

	p.grouper.NoteConversation(storedID)
	return nil
}

// resolveSpeakers upserts each distinct speaker referenced by the record's
// segments and returns the name-keyed surrogate id map for this record.
func (p *Pipeline) resolveSpeakers(ctx context.Context, tx *storage.Tx, segments []types.RawSegment) (map[string]int64, error) {
	ids := make(map[string]int64)
	for _, seg := range segments {
		key := speakerKey(seg)
		if key == "" {
			continue
		}
		if _, ok := ids[key]; ok {
			continue
		}
		sp, err := tx.UpsertSpeakerByExternalID(ctx, storage.Speaker{
			ExternalID:    key,
			Name:          strings.TrimSpace(seg.SpeakerName),
			IsPrimaryUser: seg.SpeakerID == "user",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve speaker %q: %w", key, err)
		}
		ids[key] = sp.ID
	}
	return ids, nil
}

// speakerKey is the stable identifier for a segment's speaker: the source's
// speaker identifier when present, the display name otherwise.
func speakerKey(seg types.RawSegment) string {
	if id := strings.TrimSpace(seg.SpeakerID); id != "" {
		return id
	}
	return strings.TrimSpace(seg.SpeakerName)
}

// buildUtterances maps content segments onto utterance rows, skipping
// empty-text segments and numbering the rest 0-based in source order.
func buildUtterances(rec parsedRecord, speakerIDs map[string]int64) []storage.Utterance {
	utterances := make([]storage.Utterance, 0, len(rec.raw.Contents))
	seq := 0
	for _, seg := range rec.raw.Contents {
		text := strings.TrimSpace(seg.Content)
		if text == "" {
			continue
		}

		u := storage.Utterance{
			Text:          text,
			Seq:           seq,
			ContentType:   string(seg.Type),
			StartOffsetMS: seg.StartOffsetMS,
			EndOffsetMS:   seg.EndOffsetMS,
		}
		if key := speakerKey(seg); key != "" {
			if id, ok := speakerIDs[key]; ok {
				spID := id
				u.SpeakerID = &spID
			}
		}
		if seg.StartTime != "" {
			if t, err := types.ParseTimestamp(seg.StartTime); err == nil {
				u.StartTime = &t
			}
		}
		if seg.EndTime != "" {
			if t, err := types.ParseTimestamp(seg.EndTime); err == nil {
				u.EndTime = &t
			}
		}

		utterances = append(utterances, u)
		seq++
	}
	return utterances
}

func spanUnchanged(existing storage.Conversation, rec parsedRecord) bool {
	if !existing.StartTime.Equal(rec.start) {
		return false
	}
	switch {
	case existing.EndTime == nil && rec.end == nil:
		return true
	case existing.EndTime != nil && rec.end != nil:
		return existing.EndTime.Equal(*rec.end)
	default:
		return false
	}
}

// persistClusterState saves the cursor so the next batch (or process) resumes
// where this one stopped. A save failure is logged, not fatal: the cursor is
// derivable by re-running clustering.
func (p *Pipeline) persistClusterState(ctx context.Context) {
	if err := p.store.SaveClusterState(ctx, p.grouper.State()); err != nil {
		p.log.Error().Err(err).Msg("failed to persist cluster state")
	}
}
