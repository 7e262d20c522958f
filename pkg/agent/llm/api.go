// Package llm provides interfaces and types for language model client
// implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

// TemperatureDefault balances focus with a little exploration, suitable for
// community Q&A replies.
const TemperatureDefault = 0.7

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Usage reports token accounting for a completed request. Zero values mean
// the backend did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string // "end_turn", "max_tokens", etc.
	Usage      Usage
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // name kept for clarity at call sites
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// Collect drains a stream into a single string, stopping early once maxChars
// is reached (0 disables the cap). The partial content gathered so far is
// returned alongside any stream error.
func Collect(ctx context.Context, stream <-chan StreamChunk, maxChars int) (string, error) {
	var parts []byte
	for {
		select {
		case <-ctx.Done():
			return string(parts), fmt.Errorf("stream collect cancelled: %w", ctx.Err())
		case chunk, ok := <-stream:
			if !ok {
				return string(parts), nil
			}
			if chunk.Error != nil {
				return string(parts), chunk.Error
			}
			parts = append(parts, chunk.Content...)
			if chunk.Done {
				return string(parts), nil
			}
			if maxChars > 0 && len(parts) >= maxChars {
				return string(parts[:maxChars]), nil
			}
		}
	}
}

// ExtractSystem splits the leading system messages from a conversation,
// returning the concatenated system prompt and the remaining messages.
// Several backends take the system prompt as a separate parameter.
func ExtractSystem(messages []CompletionMessage) (string, []CompletionMessage) {
	var system []string
	rest := make([]CompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return joinSections(system), rest
}

func joinSections(sections []string) string {
	out := ""
	for i, s := range sections {
		if i > 0 {
			out += "\n\n"
		}
		out += s
	}
	return out
}
