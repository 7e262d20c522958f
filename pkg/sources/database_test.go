package sources

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverForConnString(t *testing.T) {
	tests := []struct {
		conn string
		want string
	}{
		{"postgres://bot:pw@localhost/faq", "pgx"},
		{"postgresql://bot:pw@localhost/faq", "pgx"},
		{"/var/lib/bot/faq.db", "sqlite"},
		{"file:faq.db?mode=ro", "sqlite"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, driverForConnString(tt.conn), tt.conn)
	}
}

func TestDatabaseAgentDefaults(t *testing.T) {
	a := NewDatabaseAgent("faq", "faq.db", "SELECT 1", DatabaseAgentOptions{})
	assert.Equal(t, "database", a.category)
	assert.Equal(t, "id", a.idColumn)
	assert.Equal(t, "database", a.Type())
}

func TestBuildDocument(t *testing.T) {
	a := NewDatabaseAgent("faq", "faq.db", "SELECT 1", DatabaseAgentOptions{
		Category:       "support",
		TitleColumn:    "question",
		ContentColumns: []string{"question", "answer"},
	})

	doc, err := a.buildDocument(map[string]any{
		"id":       int64(7),
		"question": "How do I reset?",
		"answer":   "Use the portal.",
		"internal": "hidden",
	})
	require.NoError(t, err)

	assert.Equal(t, "faq_7", doc.SourceID)
	assert.Equal(t, "How do I reset?", doc.Title)
	assert.Equal(t, "support", doc.Category)
	assert.Contains(t, doc.Content, "Use the portal.")
	assert.NotContains(t, doc.Content, "hidden")
	assert.Equal(t, "hidden", doc.Metadata["internal"])
}

func TestBuildDocumentMissingIDColumn(t *testing.T) {
	a := NewDatabaseAgent("faq", "faq.db", "SELECT 1", DatabaseAgentOptions{})
	doc, err := a.buildDocument(map[string]any{"answer": "x"})
	require.NoError(t, err)
	assert.Equal(t, "faq_unknown", doc.SourceID)
}

func newFAQDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faq.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE faq (id INTEGER PRIMARY KEY, question TEXT, answer TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO faq (question, answer) VALUES ('q1', 'a1'), ('q2', 'a2')`)
	require.NoError(t, err)
	return path
}

func TestDatabaseAgentCollectSQLite(t *testing.T) {
	path := newFAQDatabase(t)

	a := NewDatabaseAgent("faq", path, "SELECT id, question, answer FROM faq ORDER BY id", DatabaseAgentOptions{
		TitleColumn: "question",
	})

	docs, err := a.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "faq_1", docs[0].SourceID)
	assert.Equal(t, "q1", docs[0].Title)
	assert.Contains(t, docs[0].Content, "a1")
	assert.Equal(t, "faq_2", docs[1].SourceID)
}

func TestDatabaseAgentHealthCheck(t *testing.T) {
	path := newFAQDatabase(t)
	a := NewDatabaseAgent("faq", path, "SELECT 1", DatabaseAgentOptions{})
	assert.NoError(t, a.HealthCheck(context.Background()))
}

func TestDatabaseAgentCollectBadQuery(t *testing.T) {
	path := newFAQDatabase(t)
	a := NewDatabaseAgent("faq", path, "SELECT nope FROM missing", DatabaseAgentOptions{})
	_, err := a.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}
