package persistence

import (
	"database/sql"
	"fmt"
)

// schema holds the full DDL. Every statement is idempotent so startup can
// run it unconditionally.
const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id   TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transcripts_thread ON transcripts(thread_id, id);

CREATE TABLE IF NOT EXISTS source_runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_name   TEXT NOT NULL,
	status       TEXT NOT NULL CHECK (status IN ('success', 'error')),
	documents    INTEGER NOT NULL DEFAULT 0,
	uploaded     INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_runs_agent ON source_runs(agent_name, id);
`

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
