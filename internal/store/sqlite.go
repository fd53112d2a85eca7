// ABOUTME: SQLite implementation of the event log using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements EventStore on an embedded SQLite database. WAL mode
// gives concurrent readers alongside the single writer this system needs.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the event database at the given path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("event store initialized", "path", path)
	return s, nil
}

// createSchema creates the events table and its indexes if absent. Events are
// immutable, so there is no update path and no migration machinery beyond
// additive CREATE IF NOT EXISTS.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			session_id TEXT NOT NULL,
			payload    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp
			ON events(timestamp);

		CREATE INDEX IF NOT EXISTS idx_events_session_timestamp
			ON events(session_id, timestamp);

		CREATE INDEX IF NOT EXISTS idx_events_type_timestamp
			ON events(type, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
