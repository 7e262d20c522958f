// Package sources collects knowledge base content from external systems
// and ships it to S3 for Bedrock ingestion. Collectors implement the
// Agent interface and are registered with cron schedules; the Scheduler
// runs them, uploads their documents, and records run outcomes.
package sources

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is one piece of knowledge produced by a source agent.
type Document struct {
	Content    string
	SourceType string
	SourceID   string

	Title     string
	Author    string
	Timestamp time.Time
	Tags      []string

	// Category is the top-level S3 folder for the document.
	Category string

	Metadata map[string]string
}

// NewDocument builds a document with the default category and the
// current timestamp.
func NewDocument(content, sourceType, sourceID string) Document {
	return Document{
		Content:    content,
		SourceType: sourceType,
		SourceID:   sourceID,
		Category:   "general",
		Timestamp:  time.Now().UTC(),
	}
}

// Key derives the S3 object key: category/yyyy/mm/dd/type/id.json.
// Path separators in the source ID are flattened so they cannot create
// extra folder levels.
func (d Document) Key() string {
	category := d.Category
	if category == "" {
		category = "general"
	}
	safeID := strings.NewReplacer("/", "_", "\\", "_").Replace(d.SourceID)
	return fmt.Sprintf("%s/%s/%s/%s.json", category, d.Timestamp.Format("2006/01/02"), d.SourceType, safeID)
}

// BedrockJSON renders the document in the JSON shape the Bedrock
// knowledge base ingests: content plus a flat metadata object.
func (d Document) BedrockJSON() ([]byte, error) {
	metadata := map[string]string{
		"source_type": d.SourceType,
		"source_id":   d.SourceID,
		"title":       d.Title,
		"timestamp":   d.Timestamp.Format(time.RFC3339),
		"tags":        strings.Join(d.Tags, ","),
		"category":    d.Category,
	}
	for k, v := range d.Metadata {
		metadata[k] = v
	}
	payload := struct {
		Content  string            `json:"content"`
		Metadata map[string]string `json:"metadata"`
	}{
		Content:  d.Content,
		Metadata: metadata,
	}
	return json.MarshalIndent(payload, "", "  ")
}
