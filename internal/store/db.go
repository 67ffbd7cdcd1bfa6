// Package store provides durable persistence for committed session state:
// the document-storage collaborator behind the session registry. Committed
// changes and conflicts are written asynchronously; reads serve recovery
// after a restart.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps sql.DB with collab-engine configuration.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database under dataDir with WAL mode and foreign
// keys enabled. modernc.org/sqlite is pure Go, no CGO.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "collabd.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	state         TEXT NOT NULL,
	sequence      INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	UNIQUE (project_id, document_id)
);

CREATE TABLE IF NOT EXISTS changes (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	author_id     TEXT NOT NULL,
	client_id     TEXT NOT NULL,
	operation     TEXT NOT NULL,
	target_path   TEXT NOT NULL,
	old_value     TEXT NOT NULL DEFAULT '',
	new_value     TEXT NOT NULL DEFAULT '',
	submitted_at  INTEGER NOT NULL,
	sequence      INTEGER NOT NULL,
	base_sequence INTEGER NOT NULL DEFAULT 0,
	depends_on    TEXT NOT NULL DEFAULT '[]',
	resolution    TEXT NOT NULL,
	applied       INTEGER NOT NULL DEFAULT 0,
	UNIQUE (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS edit_conflicts (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	target_path TEXT NOT NULL,
	change_ids  TEXT NOT NULL DEFAULT '[]',
	detected_at INTEGER NOT NULL,
	status      TEXT NOT NULL,
	resolution  TEXT NOT NULL DEFAULT '',
	resolved_by TEXT NOT NULL DEFAULT '',
	resolved_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_changes_session_seq ON changes(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_conflicts_session ON edit_conflicts(session_id);
`

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
