package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugDomainFiltering(t *testing.T) {
	t.Cleanup(func() { SetDebug(false, nil) })

	SetDebug(false, nil)
	assert.False(t, DebugEnabledFor("discord"))

	SetDebug(true, nil)
	assert.True(t, DebugEnabledFor("discord"))
	assert.True(t, DebugEnabledFor("sources"))

	SetDebug(true, []string{"discord", " kb "})
	assert.True(t, DebugEnabledFor("discord"))
	assert.True(t, DebugEnabledFor("kb"))
	assert.False(t, DebugEnabledFor("sources"))
}

func TestLoggerCapturesEntries(t *testing.T) {
	logger := NewLogger("test-component")
	logger.Info("hello %s", "world")

	entries := Recent()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "test-component", last.Component)
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "hello world", last.Message)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))

	err := Errorf("boom %d", 7)
	require.Error(t, err)
	wrapped := Wrap(err, "outer")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, err)
	assert.Contains(t, wrapped.Error(), "outer: boom 7")
}
