// Package metrics provides services for querying and aggregating
// metrics data from Prometheus.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// BackendMetrics represents aggregated LLM metrics for one backend.
type BackendMetrics struct {
	Backend          string `json:"backend"`
	Model            string `json:"model,omitempty"`
	Requests         int64  `json:"requests"`
	Errors           int64  `json:"errors"`
	Throttles        int64  `json:"throttles"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalar runs a query expected to return a single sample and returns
// its value, or 0 when the series does not exist yet.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

// GetBackendMetrics retrieves aggregated request and token counts for a
// backend, summed across all models.
func (q *QueryService) GetBackendMetrics(ctx context.Context, backend string) (*BackendMetrics, error) {
	metrics := &BackendMetrics{Backend: backend}

	queries := []struct {
		target *int64
		expr   string
	}{
		{&metrics.Requests, fmt.Sprintf(`sum(llm_requests_total{backend=%q})`, backend)},
		{&metrics.Errors, fmt.Sprintf(`sum(llm_requests_total{backend=%q, status="error"})`, backend)},
		{&metrics.Throttles, `sum(llm_throttle_total)`},
		{&metrics.PromptTokens, fmt.Sprintf(`sum(llm_tokens_total{backend=%q, type="prompt"})`, backend)},
		{&metrics.CompletionTokens, fmt.Sprintf(`sum(llm_tokens_total{backend=%q, type="completion"})`, backend)},
	}
	for _, item := range queries {
		value, err := q.scalar(ctx, item.expr)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s metrics: %w", backend, err)
		}
		*item.target = value
	}

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	return metrics, nil
}

// GetBackendMetricsByModel breaks the backend's metrics down per model.
func (q *QueryService) GetBackendMetricsByModel(ctx context.Context, backend string) (map[string]*BackendMetrics, error) {
	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{backend=%q})`, backend)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	result := make(map[string]*BackendMetrics, len(models))
	for _, modelName := range models {
		metrics := &BackendMetrics{Backend: backend, Model: modelName}

		prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{backend=%q, model=%q, type="prompt"})`, backend, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for %s: %w", modelName, err)
		}
		completion, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{backend=%q, model=%q, type="completion"})`, backend, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for %s: %w", modelName, err)
		}
		requests, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_requests_total{backend=%q, model=%q})`, backend, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query requests for %s: %w", modelName, err)
		}

		metrics.PromptTokens = prompt
		metrics.CompletionTokens = completion
		metrics.TotalTokens = prompt + completion
		metrics.Requests = requests
		result[modelName] = metrics
	}

	return result, nil
}
