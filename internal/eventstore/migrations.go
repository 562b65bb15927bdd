package eventstore

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one numbered, idempotent schema step. Each runs in its own
// transaction; schema_version records which have applied.
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "core tables, FTS, indexes, triggers",
		sql: `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	root_dir TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id),
	title TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	model TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	head_event_id TEXT NOT NULL DEFAULT '',
	root_event_id TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	token_input INTEGER NOT NULL DEFAULT 0,
	token_output INTEGER NOT NULL DEFAULT 0,
	token_cache_read INTEGER NOT NULL DEFAULT 0,
	token_cache_creation INTEGER NOT NULL DEFAULT 0,
	token_last_turn_input INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	turn_count INTEGER NOT NULL DEFAULT 0,
	root_dir TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	summary_up_to TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL REFERENCES sessions(id),
	workspace_id TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	type TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);

CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS areas (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	area_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id TEXT NOT NULL REFERENCES tasks(id),
	depends_on_id TEXT NOT NULL REFERENCES tasks(id),
	PRIMARY KEY (task_id, depends_on_id)
);

CREATE TABLE IF NOT EXISTS task_activity (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	timestamp TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS task_backlog (
	task_id TEXT PRIMARY KEY REFERENCES tasks(id),
	rank INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS device_tokens (
	id TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	platform TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	level TEXT NOT NULL,
	target TEXT NOT NULL,
	message TEXT NOT NULL,
	fields TEXT,
	span_id TEXT,
	session_id TEXT,
	agent_id TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);

CREATE TABLE IF NOT EXISTS branches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	name TEXT NOT NULL,
	base_commit TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	created_at TEXT NOT NULL,
	merged_at TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	event_id UNINDEXED, body, content=''
);
CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
	task_id UNINDEXED, body, content=''
);
CREATE VIRTUAL TABLE IF NOT EXISTS areas_fts USING fts5(
	area_id UNINDEXED, body, content=''
);
CREATE VIRTUAL TABLE IF NOT EXISTS logs_fts USING fts5(
	log_id UNINDEXED, body, content=''
);

CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(event_id, body) VALUES (new.id, new.payload);
END;
CREATE TRIGGER IF NOT EXISTS tasks_ai AFTER INSERT ON tasks BEGIN
	INSERT INTO tasks_fts(task_id, body) VALUES (new.id, new.title);
END;
CREATE TRIGGER IF NOT EXISTS tasks_au AFTER UPDATE ON tasks BEGIN
	DELETE FROM tasks_fts WHERE task_id = old.id;
	INSERT INTO tasks_fts(task_id, body) VALUES (new.id, new.title);
END;
CREATE TRIGGER IF NOT EXISTS areas_ai AFTER INSERT ON areas BEGIN
	INSERT INTO areas_fts(area_id, body) VALUES (new.id, new.name);
END;
CREATE TRIGGER IF NOT EXISTS logs_ai AFTER INSERT ON logs BEGIN
	INSERT INTO logs_fts(log_id, body) VALUES (new.id, new.message);
END;
`,
	},
	{
		version:     2,
		description: "per-turn metadata columns on events table",
		sql: `
ALTER TABLE events ADD COLUMN turn_id TEXT NOT NULL DEFAULT '';
ALTER TABLE events ADD COLUMN turn_index INTEGER NOT NULL DEFAULT 0;
`,
	},
	{
		version:     3,
		description: "unique per-session event sequence index",
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_session_sequence ON events(session_id, sequence);
`,
	},
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// runMigrations applies every pending migration in order, each inside its
// own transaction, and records it in schema_version. Safe to call on every
// startup: already-applied versions are skipped.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	description TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("eventstore: create schema_version: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("eventstore: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("eventstore: migration v%d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version(version, applied_at, description) VALUES (?, datetime('now'), ?)`,
		m.version, m.description); err != nil {
		return err
	}
	return tx.Commit()
}
