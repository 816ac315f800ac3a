package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const utteranceColumns = `id, conversation_id, speaker_id, text, start_time, end_time,
       start_offset_ms, end_offset_ms, seq, content_type, created_at`

// SearchHit is one full-text match with its relevance rank. Lower rank is a
// better match (FTS5 bm25 scores are negative).
type SearchHit struct {
	Utterance
	Rank float64
}

func scanUtterance(row rowScanner) (Utterance, error) {
	var u Utterance
	var speakerID sql.NullInt64
	var startTime, endTime sql.NullTime
	var startOffset, endOffset sql.NullInt64
	var contentType sql.NullString
	err := row.Scan(
		&u.ID, &u.ConversationID, &speakerID, &u.Text, &startTime, &endTime,
		&startOffset, &endOffset, &u.Seq, &contentType, &u.CreatedAt,
	)
	if err != nil {
		return Utterance{}, err
	}
	if speakerID.Valid {
		id := speakerID.Int64
		u.SpeakerID = &id
	}
	if startTime.Valid {
		t := startTime.Time
		u.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		u.EndTime = &t
	}
	if startOffset.Valid {
		v := startOffset.Int64
		u.StartOffsetMS = &v
	}
	if endOffset.Valid {
		v := endOffset.Int64
		u.EndOffsetMS = &v
	}
	u.ContentType = contentType.String
	return u, nil
}

// replaceUtterancesWithQuerier is the internal implementation that uses a querier
func (s *Store) replaceUtterancesWithQuerier(ctx context.Context, q querier, conversationID int64, batch []Utterance) error {
	// Replace, don't merge: a re-fetch that shrank must not leave stale
	// segments behind, and the FTS triggers keep the index aligned through
	// both the delete and the inserts.
	if _, err := q.ExecContext(ctx, `DELETE FROM utterances WHERE conversation_id = ?`, conversationID); err != nil {
		return classify(err)
	}

	query := `
		INSERT INTO utterances (conversation_id, speaker_id, text, start_time, end_time,
		                        start_offset_ms, end_offset_ms, seq, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	for i := range batch {
		u := &batch[i]
		var speakerID, startTime, endTime, startOffset, endOffset interface{}
		if u.SpeakerID != nil {
			speakerID = *u.SpeakerID
		}
		if u.StartTime != nil {
			startTime = *u.StartTime
		}
		if u.EndTime != nil {
			endTime = *u.EndTime
		}
		if u.StartOffsetMS != nil {
			startOffset = *u.StartOffsetMS
		}
		if u.EndOffsetMS != nil {
			endOffset = *u.EndOffsetMS
		}
		if _, err := q.ExecContext(ctx, query,
			conversationID, speakerID, u.Text, startTime, endTime,
			startOffset, endOffset, u.Seq, nullString(u.ContentType), now); err != nil {
			return classify(err)
		}
	}
	return nil
}

// ReplaceUtterances persists the ordered utterance batch for one conversation
// atomically, replacing whatever was stored before. Duplicate or negative
// sequence numbers fail the whole batch with ErrConstraintViolation.
func (s *Store) ReplaceUtterances(ctx context.Context, conversationID int64, batch []Utterance) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.ReplaceUtterances(ctx, conversationID, batch)
	})
}

func (t *Tx) ReplaceUtterances(ctx context.Context, conversationID int64, batch []Utterance) error {
	return t.store.replaceUtterancesWithQuerier(ctx, t.querier(), conversationID, batch)
}

// GetUtterance fetches an utterance by surrogate id.
func (s *Store) GetUtterance(ctx context.Context, id int64) (Utterance, error) {
	u, err := scanUtterance(s.db.QueryRowContext(ctx, `SELECT `+utteranceColumns+` FROM utterances WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Utterance{}, ErrNotFound
	}
	if err != nil {
		return Utterance{}, classify(err)
	}
	return u, nil
}

func (s *Store) listUtterancesWithQuerier(ctx context.Context, q querier, conversationID int64) ([]Utterance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+utteranceColumns+` FROM utterances WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	utterances := make([]Utterance, 0)
	for rows.Next() {
		u, err := scanUtterance(rows)
		if err != nil {
			return nil, classify(err)
		}
		utterances = append(utterances, u)
	}
	return utterances, classify(rows.Err())
}

// ListUtterancesByConversation returns a conversation's utterances ordered by
// sequence number ascending.
func (s *Store) ListUtterancesByConversation(ctx context.Context, conversationID int64) ([]Utterance, error) {
	return s.listUtterancesWithQuerier(ctx, s.querier(), conversationID)
}

func (t *Tx) ListUtterancesByConversation(ctx context.Context, conversationID int64) ([]Utterance, error) {
	return t.store.listUtterancesWithQuerier(ctx, t.querier(), conversationID)
}

// SearchUtterances runs a full-text match over utterance text, best matches
// first, utterance start time as tie-break. An empty or whitespace-only query
// returns an empty result with no error.
func (s *Store) SearchUtterances(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 25
	}

	// rank is FTS5's built-in bm25 virtual column; ascending order puts the
	// best (most negative) matches first.
	sqlQuery := `
		SELECT u.id, u.conversation_id, u.speaker_id, u.text, u.start_time, u.end_time,
		       u.start_offset_ms, u.end_offset_ms, u.seq, u.content_type, u.created_at,
		       f.rank
		FROM utterances u
		JOIN utterances_fts f ON u.id = f.rowid
		WHERE utterances_fts MATCH ?
		ORDER BY f.rank, u.start_time ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]SearchHit, 0)
	for rows.Next() {
		var hit SearchHit
		var speakerID sql.NullInt64
		var startTime, endTime sql.NullTime
		var startOffset, endOffset sql.NullInt64
		var contentType sql.NullString
		err := rows.Scan(
			&hit.ID, &hit.ConversationID, &speakerID, &hit.Text, &startTime, &endTime,
			&startOffset, &endOffset, &hit.Seq, &contentType, &hit.CreatedAt, &hit.Rank,
		)
		if err != nil {
			return nil, classify(err)
		}
		if speakerID.Valid {
			id := speakerID.Int64
			hit.SpeakerID = &id
		}
		if startTime.Valid {
			t := startTime.Time
			hit.StartTime = &t
		}
		if endTime.Valid {
			t := endTime.Time
			hit.EndTime = &t
		}
		if startOffset.Valid {
			v := startOffset.Int64
			hit.StartOffsetMS = &v
		}
		if endOffset.Valid {
			v := endOffset.Int64
			hit.EndOffsetMS = &v
		}
		hit.ContentType = contentType.String
		hits = append(hits, hit)
	}
	return hits, classify(rows.Err())
}

// DeleteUtterance removes a single utterance.
func (s *Store) DeleteUtterance(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM utterances WHERE id = ?`, id)
	return classify(err)
}
