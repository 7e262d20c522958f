// Package retry provides retry logic with exponential backoff for resilient
// LLM backend calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"communitybot/pkg/agent/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   4,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. It defers to the llmerrors
// taxonomy when the error is classified and never retries cancellation.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	// Unclassified errors are not retried.
	return false
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Classifier Classifier
	Config     Config
}

// NewPolicy creates a retry policy. A nil classifier uses ShouldRetry.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{Config: config, Classifier: classifier}
}

// CalculateDelay computes the backoff delay before the given attempt
// (attempt 1 is the initial call and has no delay).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		// Up to 25% random jitter.
		jitter := time.Duration(rand.Int63n(int64(delay) / 4)) //nolint:gosec // jitter needs no crypto randomness
		delay += jitter
	}

	return delay
}
