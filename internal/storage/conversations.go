package storage

import (
	"context"
	"database/sql"
	"time"
)

const conversationColumns = `id, external_log_id, title, start_time, end_time, creator_id,
       raw_text, logical_event_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var title, creator, rawText, eventID sql.NullString
	var endTime sql.NullTime
	err := row.Scan(
		&c.ID, &c.ExternalLogID, &title, &c.StartTime, &endTime, &creator,
		&rawText, &eventID, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Conversation{}, err
	}
	c.Title = title.String
	c.CreatorID = creator.String
	c.RawText = rawText.String
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	if eventID.Valid {
		id := eventID.String
		c.LogicalEventID = &id
	}
	return c, nil
}

// upsertConversationWithQuerier is the internal implementation that uses a querier
func (s *Store) upsertConversationWithQuerier(ctx context.Context, q querier, c Conversation) (Conversation, error) {
	if err := c.validate(); err != nil {
		return Conversation{}, err
	}

	// New rows start pending; status of an existing row is untouched by a
	// re-fetch. An assigned logical_event_id is never cleared by a NULL
	// incoming value, only replaced by a concrete one.
	query := `
		INSERT INTO conversations (external_log_id, title, start_time, end_time, creator_id,
		                           raw_text, logical_event_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(external_log_id) DO UPDATE SET
			title = excluded.title,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			creator_id = excluded.creator_id,
			raw_text = excluded.raw_text,
			logical_event_id = COALESCE(excluded.logical_event_id, conversations.logical_event_id),
			updated_at = excluded.updated_at
		RETURNING ` + conversationColumns

	now := time.Now()
	var endTime interface{}
	if c.EndTime != nil {
		endTime = *c.EndTime
	}
	var eventID interface{}
	if c.LogicalEventID != nil {
		eventID = *c.LogicalEventID
	}

	row := q.QueryRowContext(ctx, query,
		c.ExternalLogID, nullString(c.Title), c.StartTime, endTime,
		nullString(c.CreatorID), nullString(c.RawText), eventID, now, now)
	stored, err := scanConversation(row)
	if err != nil {
		return Conversation{}, classify(err)
	}
	return stored, nil
}

// UpsertConversationByExternalID inserts the conversation or, if a row with
// the same external log id exists, updates its mutable fields in place. The
// returned value carries the stored surrogate id, status, and timestamps; the
// argument is never mutated.
func (s *Store) UpsertConversationByExternalID(ctx context.Context, c Conversation) (Conversation, error) {
	return s.upsertConversationWithQuerier(ctx, s.querier(), c)
}

func (t *Tx) UpsertConversationByExternalID(ctx context.Context, c Conversation) (Conversation, error) {
	return t.store.upsertConversationWithQuerier(ctx, t.querier(), c)
}

func (s *Store) getConversationWithQuerier(ctx context.Context, q querier, id int64) (Conversation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, classify(err)
	}
	return c, nil
}

// GetConversation fetches a conversation by surrogate id.
func (s *Store) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	return s.getConversationWithQuerier(ctx, s.querier(), id)
}

func (t *Tx) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	return t.store.getConversationWithQuerier(ctx, t.querier(), id)
}

func (s *Store) getConversationByExternalIDWithQuerier(ctx context.Context, q querier, externalLogID string) (Conversation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE external_log_id = ?`, externalLogID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, classify(err)
	}
	return c, nil
}

// GetConversationByExternalID fetches a conversation by its natural key.
func (s *Store) GetConversationByExternalID(ctx context.Context, externalLogID string) (Conversation, error) {
	return s.getConversationByExternalIDWithQuerier(ctx, s.querier(), externalLogID)
}

func (t *Tx) GetConversationByExternalID(ctx context.Context, externalLogID string) (Conversation, error) {
	return t.store.getConversationByExternalIDWithQuerier(ctx, t.querier(), externalLogID)
}

func (s *Store) listConversations(ctx context.Context, q querier, query string, args ...interface{}) ([]Conversation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, classify(err)
		}
		conversations = append(conversations, c)
	}
	return conversations, classify(rows.Err())
}

// ListConversations returns conversations ordered by start time ascending.
// limit <= 0 means no limit.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listConversations(ctx, s.querier(),
		`SELECT `+conversationColumns+` FROM conversations ORDER BY start_time ASC LIMIT ?`, limit)
}

// ListPendingConversations returns conversations with status pending, ordered
// by start time ascending.
func (s *Store) ListPendingConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listConversations(ctx, s.querier(),
		`SELECT `+conversationColumns+` FROM conversations WHERE status = 'pending' ORDER BY start_time ASC LIMIT ?`, limit)
}

// ListConversationsByLogicalEvent returns all conversations sharing the
// logical event id, ordered by start time ascending.
func (s *Store) ListConversationsByLogicalEvent(ctx context.Context, logicalEventID string) ([]Conversation, error) {
	return s.listConversations(ctx, s.querier(),
		`SELECT `+conversationColumns+` FROM conversations WHERE logical_event_id = ? ORDER BY start_time ASC`, logicalEventID)
}

// ListConversationsByCreatorWindow returns the creator's conversations whose
// start time falls within [from, to], ordered chronologically.
func (s *Store) ListConversationsByCreatorWindow(ctx context.Context, creatorID string, from, to time.Time) ([]Conversation, error) {
	return s.listConversations(ctx, s.querier(),
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE creator_id = ? AND start_time >= ? AND start_time <= ?
		 ORDER BY start_time ASC`, creatorID, from, to)
}

func (s *Store) setConversationStatusWithQuerier(ctx context.Context, q querier, id int64, status Status) error {
	if !status.Valid() {
		return classify(ErrConstraintViolation)
	}
	result, err := q.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return classify(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationStatus moves a conversation through the processing states.
func (s *Store) SetConversationStatus(ctx context.Context, id int64, status Status) error {
	return s.setConversationStatusWithQuerier(ctx, s.querier(), id, status)
}

func (t *Tx) SetConversationStatus(ctx context.Context, id int64, status Status) error {
	return t.store.setConversationStatusWithQuerier(ctx, t.querier(), id, status)
}

func (s *Store) assignLogicalEventWithQuerier(ctx context.Context, q querier, id int64, logicalEventID string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE conversations SET logical_event_id = ?, updated_at = ? WHERE id = ?`,
		logicalEventID, time.Now(), id)
	if err != nil {
		return classify(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignLogicalEvent sets or reassigns a conversation's logical event id.
func (s *Store) AssignLogicalEvent(ctx context.Context, id int64, logicalEventID string) error {
	return s.assignLogicalEventWithQuerier(ctx, s.querier(), id, logicalEventID)
}

func (t *Tx) AssignLogicalEvent(ctx context.Context, id int64, logicalEventID string) error {
	return t.store.assignLogicalEventWithQuerier(ctx, t.querier(), id, logicalEventID)
}

func (s *Store) deleteConversationWithQuerier(ctx context.Context, q querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation; its utterances cascade.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	return s.deleteConversationWithQuerier(ctx, s.querier(), id)
}

func (t *Tx) DeleteConversation(ctx context.Context, id int64) error {
	return t.store.deleteConversationWithQuerier(ctx, t.querier(), id)
}

// PurgeConversations deletes every conversation (and, by cascade, every
// utterance). This is the only bulk deletion path.
func (s *Store) PurgeConversations(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations`)
	if err != nil {
		return 0, classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
