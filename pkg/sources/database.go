package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver

	"communitybot/pkg/logx"
)

// DatabaseAgent collects documents by running a SQL query. Postgres
// connection strings use the pgx driver; anything else is treated as a
// sqlite path.
type DatabaseAgent struct {
	id             string
	connString     string
	query          string
	category       string
	idColumn       string
	titleColumn    string
	contentColumns []string
	logger         *logx.Logger
}

// DatabaseAgentOptions configures a DatabaseAgent beyond the required
// connection string and query.
type DatabaseAgentOptions struct {
	// Category is the S3 folder, default "database".
	Category string
	// IDColumn names the column used as the document source ID,
	// default "id".
	IDColumn string
	// TitleColumn optionally names the column used as the title.
	TitleColumn string
	// ContentColumns restricts which columns form the document body.
	// Empty means all columns.
	ContentColumns []string
}

// NewDatabaseAgent creates a database agent.
func NewDatabaseAgent(id, connString, query string, opts DatabaseAgentOptions) *DatabaseAgent {
	if opts.Category == "" {
		opts.Category = "database"
	}
	if opts.IDColumn == "" {
		opts.IDColumn = "id"
	}
	return &DatabaseAgent{
		id:             id,
		connString:     connString,
		query:          query,
		category:       opts.Category,
		idColumn:       opts.IDColumn,
		titleColumn:    opts.TitleColumn,
		contentColumns: opts.ContentColumns,
		logger:         logx.NewLogger("agent." + id),
	}
}

func (a *DatabaseAgent) ID() string   { return a.id }
func (a *DatabaseAgent) Type() string { return "database" }

// driverForConnString maps a connection string to a database/sql driver
// name.
func driverForConnString(connString string) string {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

func (a *DatabaseAgent) open() (*sql.DB, error) {
	db, err := sql.Open(driverForConnString(a.connString), a.connString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Collect runs the query and converts each row to a document.
func (a *DatabaseAgent) Collect(ctx context.Context) ([]Document, error) {
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, a.query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var docs []Document
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		doc, err := a.buildDocument(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	a.logger.Info("collected %d documents from database", len(docs))
	return docs, nil
}

// buildDocument converts one row into a document. The body is the row
// (or the configured content columns) rendered as indented JSON.
func (a *DatabaseAgent) buildDocument(row map[string]any) (Document, error) {
	body := row
	if len(a.contentColumns) > 0 {
		body = make(map[string]any, len(a.contentColumns))
		for _, col := range a.contentColumns {
			if v, ok := row[col]; ok {
				body[col] = v
			}
		}
	}
	content, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("encode row: %w", err)
	}

	sourceID := "unknown"
	if v, ok := row[a.idColumn]; ok {
		sourceID = fmt.Sprint(v)
	}

	doc := NewDocument(string(content), a.Type(), fmt.Sprintf("%s_%s", a.id, sourceID))
	doc.Category = a.category
	if a.titleColumn != "" {
		if v, ok := row[a.titleColumn]; ok {
			doc.Title = fmt.Sprint(v)
		}
	}
	doc.Metadata = make(map[string]string, len(row))
	for col, v := range row {
		doc.Metadata[col] = fmt.Sprint(v)
	}
	return doc, nil
}

// normalizeValue makes scanned values JSON-friendly. Drivers return
// []byte for text columns; everything else passes through.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// HealthCheck opens a connection and pings the database.
func (a *DatabaseAgent) HealthCheck(ctx context.Context) error {
	db, err := a.open()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
