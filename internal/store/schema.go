// Package store provides the SQLite-backed entity store. Each project
// owns exactly one database file; a *DB wraps one open handle.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS epics (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority    INTEGER NOT NULL DEFAULT 2,
	status      TEXT NOT NULL DEFAULT 'todo',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	epic_id        TEXT NOT NULL DEFAULT '',
	parent_task_id TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	priority       INTEGER NOT NULL DEFAULT 2,
	status         TEXT NOT NULL DEFAULT 'todo',
	tags           TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	author     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dependencies (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	depends_on_id TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	UNIQUE(task_id, depends_on_id)
);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	action      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	snapshot    TEXT,
	changes     TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS id_counters (
	entity_type TEXT PRIMARY KEY,
	counter     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tasks_epic    ON tasks(epic_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent  ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id);
CREATE INDEX IF NOT EXISTS idx_deps_task     ON dependencies(task_id);
CREATE INDEX IF NOT EXISTS idx_deps_target   ON dependencies(depends_on_id);
CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);
CREATE INDEX IF NOT EXISTS idx_events_time   ON events(created_at);
`

// DB wraps a sql.DB bound to one project datastore file.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite datastore and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
