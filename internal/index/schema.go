// Package index provides a SQLite read model of schedule entries with
// optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entries (
	path         TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	id           TEXT NOT NULL,
	heading      TEXT NOT NULL DEFAULT '',
	version      TEXT NOT NULL DEFAULT '',
	plan         TEXT NOT NULL DEFAULT '',
	expiration   TEXT NOT NULL DEFAULT '',
	timezone     TEXT NOT NULL DEFAULT '',
	participants TEXT NOT NULL DEFAULT '[]',
	resources    TEXT NOT NULL DEFAULT '[]',
	intervals    TEXT NOT NULL DEFAULT '[]',
	starts_at    TEXT NOT NULL DEFAULT '',
	ends_at      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	removed      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (path, position)
);

CREATE INDEX IF NOT EXISTS idx_entries_id ON entries(id);
CREATE INDEX IF NOT EXISTS idx_entries_starts_at ON entries(starts_at);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
