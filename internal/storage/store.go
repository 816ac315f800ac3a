package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Store owns the embedded SQLite database. All mutation goes through WithTx;
// reads may run concurrently with each other but never overlap a write, which
// the write mutex plus the single-connection pool guarantee.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is an in-flight write transaction. It exposes the same entity operations
// as the Store; everything executed through it commits or rolls back together.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

func (t *Tx) querier() querier { return t.tx }

func (s *Store) querier() querier { return s.db }

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; one connection also keeps
	// read snapshots out of the way of in-flight transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Fail fast instead of blocking indefinitely on a locked database.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// New opens or creates the database at dbPath and applies pending schema
// migrations. A migration failure is fatal to the caller: the returned error
// wraps ErrMigrationFailure and no Store is returned.
func New(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailure, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn with exclusive write access. If fn returns an error the
// transaction rolls back fully; no partial writes are observable.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	t := &Tx{tx: tx, store: s}
	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Status reports row counts, logical-event count, and database size.
func (s *Store) Status(ctx context.Context) (*StoreStatus, error) {
	status := &StoreStatus{FTSIndexBuilt: true}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM conversations", &status.Conversations},
		{"SELECT COUNT(*) FROM speakers", &status.Speakers},
		{"SELECT COUNT(*) FROM utterances", &status.Utterances},
		{"SELECT COUNT(DISTINCT logical_event_id) FROM conversations WHERE logical_event_id IS NOT NULL", &status.LogicalEvents},
		{"SELECT COUNT(*) FROM conversations WHERE status = 'pending'", &status.Pending},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, classify(err)
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}
