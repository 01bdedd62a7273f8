// Package observability exposes workflow metrics through OpenTelemetry
// with a Prometheus exporter. All recording methods are nil-safe, so a
// disabled *Metrics costs nothing at call sites.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the workflow instruments.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	loopIterations metric.Int64Histogram
	verdictScore   metric.Float64Histogram
	userFeedback   metric.Float64Histogram
}

// New creates the instruments backed by a private Prometheus registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("coursewright")

	m := &Metrics{registry: registry, provider: provider}

	if m.runsTotal, err = meter.Int64Counter("workflow_runs",
		metric.WithDescription("Workflow runs by outcome")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("workflow_run_duration_seconds",
		metric.WithDescription("Wall-clock duration of workflow runs"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.loopIterations, err = meter.Int64Histogram("workflow_loop_iterations",
		metric.WithDescription("Refinement loop iterations per run")); err != nil {
		return nil, err
	}
	if m.verdictScore, err = meter.Float64Histogram("workflow_verdict_score",
		metric.WithDescription("Final judge verdict score per run")); err != nil {
		return nil, err
	}
	if m.userFeedback, err = meter.Float64Histogram("user_feedback_score",
		metric.WithDescription("Scores submitted through the feedback endpoint")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun counts a finished run and records its duration, labeled by
// outcome.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordLoopIterations(ctx context.Context, iterations int) {
	if m == nil {
		return
	}
	m.loopIterations.Record(ctx, int64(iterations))
}

func (m *Metrics) RecordVerdictScore(ctx context.Context, score float64) {
	if m == nil {
		return
	}
	m.verdictScore.Record(ctx, score)
}

func (m *Metrics) RecordUserFeedback(ctx context.Context, score float64) {
	if m == nil {
		return
	}
	m.userFeedback.Record(ctx, score)
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
