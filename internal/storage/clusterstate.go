package storage

import (
	"context"
	"database/sql"
	"time"
)

// GetClusterState loads the persisted clustering cursor. ErrNotFound means
// no batch has ever been clustered.
func (s *Store) GetClusterState(ctx context.Context) (ClusterState, error) {
	var state ClusterState
	var lastEnd sql.NullTime
	var lastConv sql.NullInt64
	var groupID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_end_time, last_conversation_id, current_group_id, updated_at FROM cluster_state WHERE id = 1`,
	).Scan(&lastEnd, &lastConv, &groupID, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return ClusterState{}, ErrNotFound
	}
	if err != nil {
		return ClusterState{}, classify(err)
	}
	if lastEnd.Valid {
		t := lastEnd.Time
		state.LastEndTime = &t
	}
	state.LastConversationID = lastConv.Int64
	if groupID.Valid {
		id := groupID.String
		state.CurrentGroupID = &id
	}
	return state, nil
}

func (s *Store) saveClusterStateWithQuerier(ctx context.Context, q querier, state ClusterState) error {
	var lastEnd, groupID interface{}
	if state.LastEndTime != nil {
		lastEnd = *state.LastEndTime
	}
	if state.CurrentGroupID != nil {
		groupID = *state.CurrentGroupID
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cluster_state (id, last_end_time, last_conversation_id, current_group_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_end_time = excluded.last_end_time,
			last_conversation_id = excluded.last_conversation_id,
			current_group_id = excluded.current_group_id,
			updated_at = excluded.updated_at`,
		lastEnd, state.LastConversationID, groupID, time.Now())
	return classify(err)
}

// SaveClusterState persists the clustering cursor.
func (s *Store) SaveClusterState(ctx context.Context, state ClusterState) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.SaveClusterState(ctx, state)
	})
}

func (t *Tx) SaveClusterState(ctx context.Context, state ClusterState) error {
	return t.store.saveClusterStateWithQuerier(ctx, t.querier(), state)
}
