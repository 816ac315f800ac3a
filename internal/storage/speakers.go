package storage

import (
	"context"
	"database/sql"
	"time"
)

const speakerColumns = `id, external_id, name, is_primary_user, created_at, updated_at`

func scanSpeaker(row rowScanner) (Speaker, error) {
	var sp Speaker
	err := row.Scan(&sp.ID, &sp.ExternalID, &sp.Name, &sp.IsPrimaryUser, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

// upsertSpeakerWithQuerier is the internal implementation that uses a querier
func (s *Store) upsertSpeakerWithQuerier(ctx context.Context, q querier, sp Speaker) (Speaker, error) {
	if sp.ExternalID == "" {
		return Speaker{}, classify(ErrConstraintViolation)
	}

	// At most one speaker carries the primary-user flag. SQLite has no
	// partial-unique path here that survives upserts cleanly, so the flag
	// is swept application-side inside the same transaction.
	if sp.IsPrimaryUser {
		if _, err := q.ExecContext(ctx,
			`UPDATE speakers SET is_primary_user = 0, updated_at = ? WHERE is_primary_user = 1 AND external_id != ?`,
			time.Now(), sp.ExternalID); err != nil {
			return Speaker{}, classify(err)
		}
	}

	query := `
		INSERT INTO speakers (external_id, name, is_primary_user, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			is_primary_user = excluded.is_primary_user,
			updated_at = excluded.updated_at
		RETURNING ` + speakerColumns

	now := time.Now()
	stored, err := scanSpeaker(q.QueryRowContext(ctx, query, sp.ExternalID, sp.Name, sp.IsPrimaryUser, now, now))
	if err != nil {
		return Speaker{}, classify(err)
	}
	return stored, nil
}

// UpsertSpeakerByExternalID inserts the speaker or updates its name and
// primary-user flag, matched on the external speaker identifier. The returned
// value carries the stored surrogate id; the argument is never mutated.
func (s *Store) UpsertSpeakerByExternalID(ctx context.Context, sp Speaker) (Speaker, error) {
	return s.upsertSpeakerWithQuerier(ctx, s.querier(), sp)
}

func (t *Tx) UpsertSpeakerByExternalID(ctx context.Context, sp Speaker) (Speaker, error) {
	return t.store.upsertSpeakerWithQuerier(ctx, t.querier(), sp)
}

// GetSpeaker fetches a speaker by surrogate id.
func (s *Store) GetSpeaker(ctx context.Context, id int64) (Speaker, error) {
	sp, err := scanSpeaker(s.db.QueryRowContext(ctx, `SELECT `+speakerColumns+` FROM speakers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Speaker{}, ErrNotFound
	}
	if err != nil {
		return Speaker{}, classify(err)
	}
	return sp, nil
}

// GetSpeakerByExternalID fetches a speaker by the source's identifier.
func (s *Store) GetSpeakerByExternalID(ctx context.Context, externalID string) (Speaker, error) {
	sp, err := scanSpeaker(s.db.QueryRowContext(ctx, `SELECT `+speakerColumns+` FROM speakers WHERE external_id = ?`, externalID))
	if err == sql.ErrNoRows {
		return Speaker{}, ErrNotFound
	}
	if err != nil {
		return Speaker{}, classify(err)
	}
	return sp, nil
}

// ListSpeakers returns all speakers ordered by name.
func (s *Store) ListSpeakers(ctx context.Context) ([]Speaker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+speakerColumns+` FROM speakers ORDER BY name`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	speakers := make([]Speaker, 0)
	for rows.Next() {
		sp, err := scanSpeaker(rows)
		if err != nil {
			return nil, classify(err)
		}
		speakers = append(speakers, sp)
	}
	return speakers, classify(rows.Err())
}

func (s *Store) deleteSpeakerWithQuerier(ctx context.Context, q querier, id int64) error {
	// Referencing utterances keep their rows; speaker_id is set NULL by
	// the schema's ON DELETE SET NULL.
	result, err := q.ExecContext(ctx, `DELETE FROM speakers WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSpeaker removes a speaker, nulling out utterance references.
func (s *Store) DeleteSpeaker(ctx context.Context, id int64) error {
	return s.deleteSpeakerWithQuerier(ctx, s.querier(), id)
}

func (t *Tx) DeleteSpeaker(ctx context.Context, id int64) error {
	return t.store.deleteSpeakerWithQuerier(ctx, t.querier(), id)
}
