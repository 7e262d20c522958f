package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, root, profile string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, profile)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestLoadFullBundle(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "helper", map[string]string{
		"helper.system.md":     "You are a helper.",
		"helper.user.md":       "Start friendly.",
		"helper.guardrails.md": "No politics.",
		"helper.examples.md":   "Q: ... A: ...",
		"notes.md":             "ignored, wrong name pattern",
	})

	loader := NewLoader(root, "")
	bundle, err := loader.Load("helper")
	require.NoError(t, err)

	assert.Equal(t, "helper", bundle.Profile)
	assert.Equal(t, "You are a helper.", bundle.System)
	assert.Equal(t, "Start friendly.", bundle.User)
	assert.Equal(t, map[string]string{
		"guardrails": "No politics.",
		"examples":   "Q: ... A: ...",
	}, bundle.Extras)
}

func TestLoadSystemOnly(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "minimal", map[string]string{
		"minimal.system.md": "Short persona.",
	})

	bundle, err := NewLoader(root, "").Load("minimal")
	require.NoError(t, err)
	assert.Equal(t, "Short persona.", bundle.System)
	assert.Empty(t, bundle.User)
	assert.Empty(t, bundle.Extras)
}

func TestLoadErrors(t *testing.T) {
	root := t.TempDir()
	loader := NewLoader(root, "")

	_, err := loader.Load("absent")
	assert.ErrorContains(t, err, "profile directory not found")

	// Directory exists but system file is missing.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))
	_, err = loader.Load("broken")
	assert.ErrorContains(t, err, "missing system prompt file")
}

func TestOverrideReplacesSystem(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "helper", map[string]string{
		"helper.system.md": "on disk",
		"helper.user.md":   "primer",
	})

	bundle, err := NewLoader(root, "overridden persona").Load("helper")
	require.NoError(t, err)
	assert.Equal(t, "overridden persona", bundle.System)
	assert.Equal(t, "primer", bundle.User)
}

func TestCacheAndRefresh(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "helper", map[string]string{
		"helper.system.md": "v1",
	})

	loader := NewLoader(root, "")
	bundle, err := loader.Load("helper")
	require.NoError(t, err)
	assert.Equal(t, "v1", bundle.System)

	// A disk change is not visible until Refresh.
	writeProfile(t, root, "helper", map[string]string{
		"helper.system.md": "v2",
	})
	bundle, err = loader.Load("helper")
	require.NoError(t, err)
	assert.Equal(t, "v1", bundle.System)

	loader.Refresh()
	bundle, err = loader.Load("helper")
	require.NoError(t, err)
	assert.Equal(t, "v2", bundle.System)
}

func TestSystemPromptHelper(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "helper", map[string]string{
		"helper.system.md": "persona",
	})

	system, err := NewLoader(root, "").SystemPrompt("helper")
	require.NoError(t, err)
	assert.Equal(t, "persona", system)
}
