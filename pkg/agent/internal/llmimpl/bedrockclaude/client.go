// Package bedrockclaude provides an Anthropic Claude client served through
// Amazon Bedrock, implementing the LLM interface.
package bedrockclaude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
)

// Client wraps the Anthropic SDK pointed at Bedrock to implement
// llm.LLMClient.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClient creates a Claude-on-Bedrock client for the given model ID
// (e.g., "anthropic.claude-3-5-sonnet-20241022-v2:0"). The AWS config
// carries region and credentials.
func NewClient(cfg aws.Config, model string) llm.LLMClient {
	client := anthropic.NewClient(bedrock.WithConfig(cfg))
	return &Client{
		client: client,
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for the Anthropic API requirements:
// system messages move to the top-level system parameter, consecutive user
// messages merge, and the sequence must start and end with a user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	system, rest := llm.ExtractSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var userParts []string
	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
				userParts = nil
			}
			merged = append(merged, *msg)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
	}

	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}

	return system, merged, nil
}

// buildParams converts a completion request to Anthropic message parameters.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) buildParams(in llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}
	return params, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Claude")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude response contained no text blocks")
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if ev.Delta.Text == "" {
					continue
				}
				select {
				case ch <- llm.StreamChunk{Content: ev.Delta.Text}:
				case <-ctx.Done():
					return
				}
			case anthropic.MessageStopEvent:
				select {
				case ch <- llm.StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.StreamChunk{Error: classifyError(err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK and Bedrock errors to our structured
// error types. API errors carry a status code; everything else falls back
// to string heuristics.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled or timed out")
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apierr.StatusCode, "authentication failed")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apierr.StatusCode, "rate limit exceeded")
		case 400, 404, 413:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apierr.StatusCode, "bad request")
		case 500, 502, 503, 504, 529:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apierr.StatusCode, "server error")
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(errStr, "throttl"),
		strings.Contains(errStr, "rate"),
		strings.Contains(errStr, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "credential"),
		strings.Contains(errStr, "access denied"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
	}
}
