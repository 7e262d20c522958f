package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"communitybot/pkg/logx"
)

// ScriptAgent runs an executable and parses its stdout as documents.
// The script prints either a single JSON object or a JSON array of
// objects with content/title/id/category/metadata fields.
type ScriptAgent struct {
	id       string
	path     string
	args     []string
	category string
	logger   *logx.Logger
}

// NewScriptAgent creates a script agent. An empty category defaults to
// "script".
func NewScriptAgent(id, path string, args []string, category string) *ScriptAgent {
	if category == "" {
		category = "script"
	}
	return &ScriptAgent{
		id:       id,
		path:     path,
		args:     args,
		category: category,
		logger:   logx.NewLogger("agent." + id),
	}
}

func (a *ScriptAgent) ID() string   { return a.id }
func (a *ScriptAgent) Type() string { return "script" }

// scriptDocument is the JSON shape scripts emit per document.
type scriptDocument struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Category string            `json:"category"`
	Metadata map[string]string `json:"metadata"`
}

// Collect executes the script and converts its JSON output.
func (a *ScriptAgent) Collect(ctx context.Context) ([]Document, error) {
	cmd := exec.CommandContext(ctx, a.path, a.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Info("running script %s", a.path)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("script %s failed: %w (stderr: %s)", a.path, err, strings.TrimSpace(stderr.String()))
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		a.logger.Warn("script %s produced no output", a.path)
		return nil, nil
	}

	items, err := parseScriptOutput([]byte(output))
	if err != nil {
		return nil, fmt.Errorf("script %s output is not valid JSON: %w", a.path, err)
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc := NewDocument(item.Content, a.Type(), item.ID)
		if doc.SourceID == "" {
			doc.SourceID = fmt.Sprintf("%s_%s", a.id, uuid.NewString())
		}
		doc.Title = item.Title
		doc.Category = a.category
		if item.Category != "" {
			doc.Category = item.Category
		}
		doc.Metadata = item.Metadata
		docs = append(docs, doc)
	}
	a.logger.Info("collected %d documents from script", len(docs))
	return docs, nil
}

// parseScriptOutput accepts a single object or an array of objects.
func parseScriptOutput(raw []byte) ([]scriptDocument, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single scriptDocument
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []scriptDocument{single}, nil
	}
	var items []scriptDocument
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// HealthCheck verifies the script exists and is a readable regular file.
func (a *ScriptAgent) HealthCheck(_ context.Context) error {
	info, err := os.Stat(a.path)
	if err != nil {
		return fmt.Errorf("script not found: %s", a.path)
	}
	if info.IsDir() {
		return fmt.Errorf("script path is not a file: %s", a.path)
	}
	f, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("script is not readable: %s", a.path)
	}
	_ = f.Close()
	return nil
}
