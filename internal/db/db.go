// Package db provides SQLite database access for roomline.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return open(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path))
}

// OpenInMemory opens an in-memory database, used by tests. Each call gets
// its own isolated database; the pool is pinned to a single connection so
// no shared cache is needed.
func OpenInMemory() (*DB, error) {
	return open("file::memory:?_pragma=foreign_keys(1)")
}

func open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between pool connections on the shared in-memory cache.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn}, nil
}

// Migrate creates or upgrades the schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Transaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	room_id TEXT NOT NULL,
	prev_chunk_id TEXT NOT NULL DEFAULT '',
	next_chunk_id TEXT NOT NULL DEFAULT '',
	prev_token TEXT NOT NULL DEFAULT '',
	next_token TEXT NOT NULL DEFAULT '',
	is_last_forward INTEGER NOT NULL DEFAULT 0,
	is_last_forward_thread INTEGER NOT NULL DEFAULT 0,
	root_thread_event_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chunks_room ON chunks(room_id);
CREATE INDEX IF NOT EXISTS idx_chunks_room_live ON chunks(room_id, is_last_forward);

CREATE TABLE IF NOT EXISTS chunk_events (
	event_id TEXT PRIMARY KEY,
	chunk_id TEXT NOT NULL,
	room_id TEXT NOT NULL,
	display_index INTEGER NOT NULL,
	type TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	origin_server_ts INTEGER NOT NULL,
	content_json TEXT,
	decrypted_type TEXT NOT NULL DEFAULT '',
	decrypted_content_json TEXT,
	relates_to_event_id TEXT NOT NULL DEFAULT '',
	relation_type TEXT NOT NULL DEFAULT '',
	thread_root_id TEXT NOT NULL DEFAULT '',
	send_state TEXT NOT NULL DEFAULT 'synced',
	transaction_id TEXT NOT NULL DEFAULT '',
	sender_display_name TEXT NOT NULL DEFAULT '',
	sender_avatar_url TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chunk_events_chunk ON chunk_events(chunk_id, display_index);
CREATE INDEX IF NOT EXISTS idx_chunk_events_room ON chunk_events(room_id);

CREATE TABLE IF NOT EXISTS read_receipts (
	room_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	thread_id TEXT NOT NULL DEFAULT '',
	event_id TEXT NOT NULL,
	origin_server_ts INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id, thread_id)
);

CREATE TABLE IF NOT EXISTS read_markers (
	room_id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	marked_unread INTEGER NOT NULL DEFAULT 0,
	latest_event_id TEXT NOT NULL DEFAULT '',
	latest_sender_id TEXT NOT NULL DEFAULT ''
);
`
