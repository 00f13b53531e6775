package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "supportbot/pipeline"

// PipelineMetrics holds the instruments recorded by the chat pipelines.
// The zero value is not usable; use NewPipelineMetrics or NopMetrics.
type PipelineMetrics struct {
	requests     otelmetric.Int64Counter
	degraded     otelmetric.Int64Counter
	tokens       otelmetric.Int64Counter
	stageLatency otelmetric.Float64Histogram
	rateLimited  otelmetric.Int64Counter
}

// NewPipelineMetrics registers the pipeline instruments on provider.
func NewPipelineMetrics(provider otelmetric.MeterProvider) (*PipelineMetrics, error) {
	meter := provider.Meter(meterName)

	requests, err := meter.Int64Counter("chat_requests_total",
		otelmetric.WithDescription("Chat pipeline runs by endpoint and outcome"))
	if err != nil {
		return nil, err
	}
	degraded, err := meter.Int64Counter("chat_degraded_stages_total",
		otelmetric.WithDescription("Optional pipeline stages that failed and were absorbed"))
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("chat_tokens_total",
		otelmetric.WithDescription("Tokens reported by the completion provider"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("chat_stage_duration_seconds",
		otelmetric.WithDescription("Latency of individual pipeline stages"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	limited, err := meter.Int64Counter("homebot_rate_limited_total",
		otelmetric.WithDescription("Anonymous requests rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		requests:     requests,
		degraded:     degraded,
		tokens:       tokens,
		stageLatency: latency,
		rateLimited:  limited,
	}, nil
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *PipelineMetrics {
	m, _ := NewPipelineMetrics(noop.NewMeterProvider())
	return m
}

func (m *PipelineMetrics) RecordRequest(ctx context.Context, endpoint, outcome string) {
	m.requests.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func (m *PipelineMetrics) RecordDegraded(ctx context.Context, stage string) {
	m.degraded.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("stage", stage)))
}

func (m *PipelineMetrics) RecordTokens(ctx context.Context, endpoint string, n int) {
	if n <= 0 {
		return
	}
	m.tokens.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *PipelineMetrics) RecordRateLimited(ctx context.Context) {
	m.rateLimited.Add(ctx, 1)
}

// ObserveStage records the time elapsed since start for stage.
func (m *PipelineMetrics) ObserveStage(ctx context.Context, stage string, start time.Time) {
	m.stageLatency.Record(ctx, time.Since(start).Seconds(),
		otelmetric.WithAttributes(attribute.String("stage", stage)))
}
