package retry

import (
	"context"
	"fmt"
	"time"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
)

// Middleware wraps an LLM client with retry logic. Failed requests are
// retried per the policy with exponential backoff; a retryable error that
// survives every attempt is converted to ServiceUnavailable.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if err := sleep(ctx, policy.CalculateDelay(attempt)); err != nil {
							return llm.CompletionResponse{}, err
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.Classifier(err) {
						break
					}
				}

				if policy.Classifier(lastErr) {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var lastErr error

				// Only the stream open is retried; chunks already delivered
				// to the caller cannot be taken back.
				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if err := sleep(ctx, policy.CalculateDelay(attempt)); err != nil {
							return nil, err
						}
					}

					ch, err := next.Stream(ctx, req)
					if err == nil {
						return ch, nil
					}
					lastErr = err

					if !policy.Classifier(err) {
						break
					}
				}

				if policy.Classifier(lastErr) {
					return nil, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return nil, lastErr
			},
			next.GetModelName,
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
