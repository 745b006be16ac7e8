// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the coordinator's application metrics implementing the
// golden 4 signals (latency, traffic, errors, saturation) for each of the
// three independently-scheduled loops: the reconciler, the spec
// propagator, and the ack listener.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics, for the status/health surface.
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Reconciler metrics.
	PollDuration    metric.Float64Histogram
	PollsTotal      metric.Int64Counter
	PollErrorsTotal metric.Int64Counter
	JobsStarted     metric.Int64Counter
	JobsAborted     metric.Int64Counter
	JobsActive      metric.Int64UpDownCounter

	// Spec propagator / ack listener metrics.
	SpecPublishDuration  metric.Float64Histogram
	SpecPublishTotal     metric.Int64Counter
	SpecPublishFailed    metric.Int64Counter
	AcksProcessedTotal   metric.Int64Counter
	AcksDiscardedTotal   metric.Int64Counter
	FeatureSetsPromoted  metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("coordinator")
	m := &Metrics{meter: meter}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, nil, err
	}

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, nil, err
	}

	if m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	); err != nil {
		return nil, nil, err
	}

	if m.PollDuration, err = meter.Float64Histogram(
		"reconcile_poll_duration_seconds",
		metric.WithDescription("Reconciliation pass duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		return nil, nil, err
	}

	if m.PollsTotal, err = meter.Int64Counter(
		"reconcile_polls_total",
		metric.WithDescription("Total number of reconciliation passes run"),
	); err != nil {
		return nil, nil, err
	}

	if m.PollErrorsTotal, err = meter.Int64Counter(
		"reconcile_poll_errors_total",
		metric.WithDescription("Total number of reconciliation passes that aborted on a transient error"),
	); err != nil {
		return nil, nil, err
	}

	if m.JobsStarted, err = meter.Int64Counter(
		"reconcile_jobs_started_total",
		metric.WithDescription("Total number of jobs started by the reconciler"),
	); err != nil {
		return nil, nil, err
	}

	if m.JobsAborted, err = meter.Int64Counter(
		"reconcile_jobs_aborted_total",
		metric.WithDescription("Total number of surplus jobs aborted by the reconciler"),
	); err != nil {
		return nil, nil, err
	}

	if m.JobsActive, err = meter.Int64UpDownCounter(
		"reconcile_jobs_active",
		metric.WithDescription("Number of currently non-terminal ingestion jobs (saturation)"),
	); err != nil {
		return nil, nil, err
	}

	if m.SpecPublishDuration, err = meter.Float64Histogram(
		"spec_publish_duration_seconds",
		metric.WithDescription("Duration of one spec publish attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, nil, err
	}

	if m.SpecPublishTotal, err = meter.Int64Counter(
		"spec_publish_total",
		metric.WithDescription("Total number of spec publish attempts"),
	); err != nil {
		return nil, nil, err
	}

	if m.SpecPublishFailed, err = meter.Int64Counter(
		"spec_publish_failed_total",
		metric.WithDescription("Total number of spec publish attempts that failed (link left unchanged)"),
	); err != nil {
		return nil, nil, err
	}

	if m.AcksProcessedTotal, err = meter.Int64Counter(
		"spec_acks_processed_total",
		metric.WithDescription("Total number of ack records applied to a delivery link"),
	); err != nil {
		return nil, nil, err
	}

	if m.AcksDiscardedTotal, err = meter.Int64Counter(
		"spec_acks_discarded_total",
		metric.WithDescription("Total number of ack records discarded as malformed, stale, or unknown"),
	); err != nil {
		return nil, nil, err
	}

	if m.FeatureSetsPromoted, err = meter.Int64Counter(
		"feature_sets_promoted_total",
		metric.WithDescription("Total number of feature sets transitioned from PENDING to READY"),
	); err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordPoll records the outcome of one reconciliation pass.
func (m *Metrics) RecordPoll(ctx context.Context, durationSeconds float64, err error) {
	m.PollsTotal.Add(ctx, 1)
	m.PollDuration.Record(ctx, durationSeconds)
	if err != nil {
		m.PollErrorsTotal.Add(ctx, 1)
	}
}

// RecordJobStarted records a job the reconciler started.
func (m *Metrics) RecordJobStarted(ctx context.Context) {
	m.JobsStarted.Add(ctx, 1)
	m.JobsActive.Add(ctx, 1)
}

// RecordJobAborted records a surplus job the reconciler aborted.
func (m *Metrics) RecordJobAborted(ctx context.Context) {
	m.JobsAborted.Add(ctx, 1)
	m.JobsActive.Add(ctx, -1)
}

// RecordSpecPublish records a spec publish attempt.
func (m *Metrics) RecordSpecPublish(ctx context.Context, durationSeconds float64, success bool) {
	m.SpecPublishTotal.Add(ctx, 1)
	m.SpecPublishDuration.Record(ctx, durationSeconds)
	if !success {
		m.SpecPublishFailed.Add(ctx, 1)
	}
}

// RecordAckProcessed records an ack record that updated a delivery link.
func (m *Metrics) RecordAckProcessed(ctx context.Context) {
	m.AcksProcessedTotal.Add(ctx, 1)
}

// RecordAckDiscarded records an ack record discarded as malformed, stale,
// or unknown.
func (m *Metrics) RecordAckDiscarded(ctx context.Context) {
	m.AcksDiscardedTotal.Add(ctx, 1)
}

// RecordFeatureSetPromoted records a feature set transitioning from
// PENDING to READY.
func (m *Metrics) RecordFeatureSetPromoted(ctx context.Context) {
	m.FeatureSetsPromoted.Add(ctx, 1)
}
