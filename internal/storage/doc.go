// Package storage provides SQLite-based persistence for lifelog transcripts.
//
// The storage layer manages:
//   - Conversations (one row per ingested transcript unit)
//   - Speakers (participant identities)
//   - Utterances (individual speech segments, full-text indexed)
//   - The persisted clustering cursor
//
// # Database Schema
//
// Tables:
//   - conversations: transcript units keyed by external_log_id
//   - speakers: participant identities keyed by external_id
//   - utterances: speech segments, UNIQUE(conversation_id, seq)
//   - utterances_fts: FTS5 index over utterance text, trigger-synchronized
//   - cluster_state: single-row clustering cursor
//   - suggestions: owned by downstream consumers, schema only
//
// Conversation deletion cascades to utterances; speaker deletion sets the
// utterance's speaker reference to NULL.
//
// # Write Discipline
//
// All mutation goes through WithTx, which serializes writers and rolls back
// fully on error:
//
//	err := store.WithTx(ctx, func(tx *storage.Tx) error {
//	    conv, err := tx.UpsertConversationByExternalID(ctx, conv)
//	    if err != nil {
//	        return err
//	    }
//	    return tx.ReplaceUtterances(ctx, conv.ID, batch)
//	})
//
// Reads run directly on the Store and may proceed concurrently with each
// other.
//
// # Errors
//
// Failures are classified into ErrNotFound, ErrConstraintViolation (bad
// input), ErrStorageUnavailable (retry later), and ErrMigrationFailure
// (fatal at startup).
//
// # Build Tags
//
// Two driver configurations are supported:
//
// CGO build (sqlite_cgo tag), using github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5" ./...
//
// Pure Go build (default), using modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build ./...
package storage
