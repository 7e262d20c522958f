package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TranscriptEntry is one stored conversation message.
type TranscriptEntry struct {
	ID        int64
	ThreadID  string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// SourceRun records one execution of a source agent.
type SourceRun struct {
	ID         int64
	AgentName  string
	Status     string
	Documents  int
	Uploaded   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store performs database operations against a connection.
type Store struct {
	db *sql.DB
}

// NewStore creates a store bound to the given connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordMessage appends a transcript entry for a thread.
func (s *Store) RecordMessage(ctx context.Context, threadID, userID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (thread_id, user_id, role, content) VALUES (?, ?, ?, ?)`,
		threadID, userID, role, content,
	)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// Transcript returns the messages of a thread in insertion order, up to
// limit entries (0 = all).
func (s *Store) Transcript(ctx context.Context, threadID string, limit int) ([]TranscriptEntry, error) {
	query := `SELECT id, thread_id, user_id, role, content, created_at
FROM transcripts WHERE thread_id = ? ORDER BY id`
	args := []any{threadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.ThreadID, &e.UserID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript row iteration failed: %w", err)
	}
	return entries, nil
}

// ThreadCount returns the number of distinct threads with transcripts.
func (s *Store) ThreadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT thread_id) FROM transcripts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return count, nil
}

// RecordSourceRun appends a source agent run record.
func (s *Store) RecordSourceRun(ctx context.Context, run *SourceRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_runs (agent_name, status, documents, uploaded, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.AgentName, run.Status, run.Documents, run.Uploaded, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record source run: %w", err)
	}
	return nil
}

// RecentSourceRuns returns the most recent runs, newest first. An empty
// agentName matches all agents.
func (s *Store) RecentSourceRuns(ctx context.Context, agentName string, limit int) ([]SourceRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, agent_name, status, documents, uploaded, error, started_at, finished_at
FROM source_runs`
	args := []any{}
	if agentName != "" {
		query += " WHERE agent_name = ?"
		args = append(args, agentName)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query source runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SourceRun
	for rows.Next() {
		var r SourceRun
		if err := rows.Scan(&r.ID, &r.AgentName, &r.Status, &r.Documents, &r.Uploaded, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source run row iteration failed: %w", err)
	}
	return runs, nil
}
