package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitybot/pkg/agent/llm"
	"communitybot/pkg/agent/llmerrors"
)

// fakeClient fails a fixed number of times before succeeding.
type fakeClient struct {
	failures int
	err      error
	calls    int
}

func (f *fakeClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (f *fakeClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: "ok", Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeClient) GetModelName() string { return "fake-model" }

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	base := &fakeClient{
		failures: 2,
		err:      llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
	}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(4), nil)))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, base.calls)
}

func TestRetryExhaustionEmitsServiceUnavailable(t *testing.T) {
	cause := llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout")
	base := &fakeClient{failures: 10, err: cause}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeServiceUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, base.calls)
}

func TestRetrySkipsNonRetryableErrors(t *testing.T) {
	base := &fakeClient{
		failures: 10,
		err:      llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad credentials"),
	}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(5), nil)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, base.calls)
}

func TestRetryStreamOpenRetried(t *testing.T) {
	base := &fakeClient{
		failures: 1,
		err:      llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection refused"),
	}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	out, err := llm.Collect(context.Background(), ch, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, base.calls)
}

func TestShouldRetryClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"transient", llmerrors.NewError(llmerrors.ErrorTypeTransient, "x"), true},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "x"), true},
		{"auth", llmerrors.NewError(llmerrors.ErrorTypeAuth, "x"), false},
		{"bad prompt", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "x"), false},
		{"service unavailable", llmerrors.NewServiceUnavailableError(errors.New("x"), 3), false},
		{"unclassified", errors.New("mystery"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   10,
		InitialDelay:  time.Second,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, time.Second, p.CalculateDelay(2))
	assert.Equal(t, 2*time.Second, p.CalculateDelay(3))
	assert.Equal(t, 4*time.Second, p.CalculateDelay(4))
	assert.Equal(t, 4*time.Second, p.CalculateDelay(8))
}
