package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_foreign_keys=ON")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, createSchema(db))
	return NewStore(db)
}

func TestRecordAndReadTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMessage(ctx, "thread-1", "user-9", "user", "how do I deploy?"))
	require.NoError(t, store.RecordMessage(ctx, "thread-1", "", "assistant", "use the pipeline"))
	require.NoError(t, store.RecordMessage(ctx, "thread-2", "user-3", "user", "unrelated"))

	entries, err := store.Transcript(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "user-9", entries[0].UserID)
	assert.Equal(t, "how do I deploy?", entries[0].Content)
	assert.Equal(t, "assistant", entries[1].Role)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestTranscriptLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordMessage(ctx, "thread-1", "u", "user", "msg"))
	}

	entries, err := store.Transcript(ctx, "thread-1", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestTranscriptEmptyThread(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.Transcript(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestThreadCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.ThreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.RecordMessage(ctx, "a", "", "user", "x"))
	require.NoError(t, store.RecordMessage(ctx, "a", "", "assistant", "y"))
	require.NoError(t, store.RecordMessage(ctx, "b", "", "user", "z"))

	count, err = store.ThreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordAndReadSourceRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.RecordSourceRun(ctx, &SourceRun{
		AgentName:  "release-notes",
		Status:     "success",
		Documents:  4,
		Uploaded:   4,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}))
	require.NoError(t, store.RecordSourceRun(ctx, &SourceRun{
		AgentName:  "faq-db",
		Status:     "error",
		Error:      "connection refused",
		StartedAt:  now,
		FinishedAt: now,
	}))

	// Newest first.
	runs, err := store.RecentSourceRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "faq-db", runs[0].AgentName)
	assert.Equal(t, "error", runs[0].Status)
	assert.Equal(t, "connection refused", runs[0].Error)
	assert.Equal(t, "release-notes", runs[1].AgentName)
	assert.Equal(t, 4, runs[1].Documents)

	// Filtered by agent.
	runs, err = store.RecentSourceRuns(ctx, "release-notes", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "success", runs[0].Status)
}

func TestInitializeAndSingleton(t *testing.T) {
	require.NoError(t, Reset())
	t.Cleanup(func() { _ = Reset() })

	dbPath := filepath.Join(t.TempDir(), "bot.db")
	require.NoError(t, Initialize(dbPath))
	assert.True(t, IsInitialized())

	// Re-initialization is a no-op.
	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "other.db")))

	store := Ops()
	require.NoError(t, store.RecordMessage(context.Background(), "t", "", "user", "hello"))

	require.NoError(t, Close())
	assert.False(t, IsInitialized())
}
