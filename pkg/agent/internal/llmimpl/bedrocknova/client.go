// Package bedrocknova provides an Amazon Bedrock client for the Nova model
// family using the Converse API.
package bedrocknova

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
)

// converseAPI is the subset of the Bedrock runtime client we use.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements llm.LLMClient against the Bedrock Converse API.
type Client struct {
	api     converseAPI
	modelID string
}

// NewClient creates a Nova client for the given model ID
// (e.g., "us.amazon.nova-lite-v1:0").
func NewClient(api *bedrockruntime.Client, modelID string) llm.LLMClient {
	return &Client{api: api, modelID: modelID}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	input, err := c.buildInput(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	content := extractText(out.Output)
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Bedrock returned empty content")
	}

	resp := llm.CompletionResponse{
		Content:    content,
		StopReason: stopReason(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

// Stream implements the llm.LLMClient interface using ConverseStream.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	input, err := c.buildInput(in)
	if err != nil {
		return nil, err
	}

	out, err := c.api.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		stream := out.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
					select {
					case ch <- llm.StreamChunk{Content: delta.Value}:
					case <-ctx.Done():
						return
					}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
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

// GetModelName returns the Bedrock model ID for this client.
func (c *Client) GetModelName() string {
	return c.modelID
}

// buildInput converts a completion request to Converse parameters. System
// messages map to the dedicated System field.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (c *Client) buildInput(in llm.CompletionRequest) (*bedrockruntime.ConverseInput, error) {
	system, rest := llm.ExtractSystem(in.Messages)
	if len(rest) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	messages := make([]types.Message, 0, len(rest))
	for i := range rest {
		role := types.ConversationRoleUser
		if rest[i].Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: rest[i].Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(in.MaxTokens)),
			Temperature: aws.Float32(in.Temperature),
		},
	}
	if in.TopP > 0 {
		input.InferenceConfig.TopP = aws.Float32(in.TopP)
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	return input, nil
}

// extractText concatenates the text blocks of a Converse response.
func extractText(output types.ConverseOutput) string {
	msg, ok := output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}

	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}

// stopReason converts Bedrock stop reasons to our stop reason format.
func stopReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return "end_turn"
	case types.StopReasonMaxTokens:
		return "max_tokens"
	default:
		return string(reason)
	}
}

// classifyError converts Bedrock API errors to our error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var throttle *types.ThrottlingException
	if errors.As(err, &throttle) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "Bedrock throttled the request")
	}
	var denied *types.AccessDeniedException
	if errors.As(err, &denied) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "Bedrock access denied")
	}
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Bedrock rejected the request")
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Bedrock model not found")
	}
	var timeout *types.ModelTimeoutException
	if errors.As(err, &timeout) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Bedrock model timed out")
	}
	var unavailable *types.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Bedrock temporarily unavailable")
	}
	var internal *types.InternalServerException
	if errors.As(err, &internal) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Bedrock internal error")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("Bedrock API error: %v", err))
}
