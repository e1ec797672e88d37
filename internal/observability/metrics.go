package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the custom instruments of the service
type Metrics struct {
	PipelineRequests metric.Int64Counter
	StageDuration    metric.Float64Histogram
	AITokens         metric.Int64Counter
	CleanupFailures  metric.Int64Counter
	RateLimitHits    metric.Int64Counter
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PipelineRequests, err = meter.Int64Counter(
		"pipeline.requests",
		metric.WithDescription("Customization requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline requests metric: %w", err)
	}

	m.StageDuration, err = meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration metric: %w", err)
	}

	m.AITokens, err = meter.Int64Counter(
		"ai.tokens",
		metric.WithDescription("Tokens spent by the crew (input, output, total)"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI tokens metric: %w", err)
	}

	m.CleanupFailures, err = meter.Int64Counter(
		"transient.cleanup.failures",
		metric.WithDescription("Transient files that could not be removed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cleanup failures metric: %w", err)
	}

	m.RateLimitHits, err = meter.Int64Counter(
		"http.rate_limit.hits",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return m, nil
}

// RecordRequest counts a finished request. outcome is "success" or an error code.
func (m *Metrics) RecordRequest(ctx context.Context, outcome string) {
	m.PipelineRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStage records how long a stage took and whether it failed.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("success", err == nil),
	))
}

// RecordTokens adds the token usage of one crew run.
func (m *Metrics) RecordTokens(ctx context.Context, input, output, total int64) {
	tokenTypes := []struct {
		tokenType string
		value     int64
	}{
		{"input", input},
		{"output", output},
		{"total", total},
	}
	for _, tt := range tokenTypes {
		m.AITokens.Add(ctx, tt.value, metric.WithAttributes(attribute.String("token_type", tt.tokenType)))
	}
}

// RecordCleanupFailure counts one transient file left behind.
func (m *Metrics) RecordCleanupFailure(ctx context.Context) {
	m.CleanupFailures.Add(ctx, 1)
}

// RecordRateLimitHit counts a rejected request. by is "ip" or "api_key".
func (m *Metrics) RecordRateLimitHit(ctx context.Context, by string) {
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("limited_by", by)))
}
