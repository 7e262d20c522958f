package openaicompat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8000/v1", "token", "qwen2.5:32b")
	require.NotNil(t, client)
	assert.Equal(t, "qwen2.5:32b", client.GetModelName())
}

func TestBuildParams(t *testing.T) {
	client := &Client{model: "gpt-4o-mini"}

	_, err := client.buildParams(llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))

	params, err := client.buildParams(llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("persona"),
		llm.NewUserMessage("hi"),
		llm.NewAssistantMessage("hello"),
		llm.NewUserMessage("how are you"),
	}))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", params.Model)
	assert.Len(t, params.Messages, 4)
}

func TestStopReasonMapping(t *testing.T) {
	assert.Equal(t, "end_turn", stopReason("stop"))
	assert.Equal(t, "end_turn", stopReason(""))
	assert.Equal(t, "max_tokens", stopReason("length"))
	assert.Equal(t, "content_filter", stopReason("content_filter"))
}

func TestClassifyErrorHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType llmerrors.ErrorType
	}{
		{"deadline", context.DeadlineExceeded, llmerrors.ErrorTypeTransient},
		{"connection", errors.New("dial tcp: connection refused"), llmerrors.ErrorTypeTransient},
		{"eof", errors.New("unexpected EOF"), llmerrors.ErrorTypeTransient},
		{"mystery", errors.New("something odd"), llmerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyError(tt.err)
			assert.True(t, llmerrors.Is(result, tt.wantType), "got %v", result)
		})
	}
}
