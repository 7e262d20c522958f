// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"time"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
	"communitybot/pkg/logx"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Middleware returns a middleware function that records metrics for LLM
// operations. It tracks request latency, token usage, success/failure rates,
// and error types. The backend label distinguishes providers serving the
// same model family (ollama, bedrock-nova, bedrock-claude, openai).
func Middleware(recorder Recorder, backend string, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				recorder.ObserveRequest(
					model,
					backend,
					resp.Usage.PromptTokens,
					resp.Usage.CompletionTokens,
					err == nil,
					errorType,
					duration,
				)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("llm request: model=%s backend=%s tokens=%d+%d status=%s duration=%dms",
						model, backend, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// For streams only the open latency and outcome are recorded.
				// Token accounting would require consuming the whole stream.
				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				recorder.ObserveRequest(model, backend, 0, 0, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("llm stream: model=%s backend=%s status=%s open=%dms",
						model, backend, status, duration.Milliseconds())
				}

				return ch, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
