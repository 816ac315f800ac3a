package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation is returned when a write breaks a uniqueness or
	// referential-integrity constraint. Callers should treat it as bad input,
	// not as a transient failure.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStorageUnavailable is returned for I/O and connection failures.
	// Callers may retry the whole operation; upsert semantics make that safe.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMigrationFailure is returned when schema setup fails. It is fatal:
	// the process must not continue on a possibly-inconsistent schema.
	ErrMigrationFailure = errors.New("migration failure")
)

// classify maps a driver error onto the storage error taxonomy. Both SQLite
// drivers report constraint failures through the error message, so matching
// on the message is the only classification that works for either build.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "constraint failed") || strings.Contains(msg, "constraint violation") {
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
