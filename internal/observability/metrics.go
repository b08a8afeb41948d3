// Package observability wires application metrics through OpenTelemetry with
// a Prometheus exporter.
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

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/sessions take
// - Traffic: Request/session throughput
// - Errors: Rate of failures
// - Saturation: the running-session gauge and notifier queue pressure
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Session metrics (Latency, Traffic, Errors, Saturation)
	SessionDuration    metric.Float64Histogram
	SessionsTotal      metric.Int64Counter
	SessionErrorsTotal metric.Int64Counter
	SessionsActive     metric.Int64UpDownCounter
	AdmissionRejects   metric.Int64Counter

	// Notifier metrics (Latency, Traffic, Errors)
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
	NotifyDropped   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("sessiond")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Session metrics
	m.SessionDuration, err = meter.Float64Histogram(
		"session_duration_seconds",
		metric.WithDescription("Session execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionsTotal, err = meter.Int64Counter(
		"sessions_total",
		metric.WithDescription("Total number of sessions admitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionErrorsTotal, err = meter.Int64Counter(
		"session_errors_total",
		metric.WithDescription("Total number of failed sessions"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of currently running sessions (0 or 1)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.AdmissionRejects, err = meter.Int64Counter(
		"session_admission_rejects_total",
		metric.WithDescription("Total admissions rejected because a session was already running"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notifier metrics
	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDropped, err = meter.Int64Counter(
		"notify_dropped_total",
		metric.WithDescription("Total events dropped (buffer full)"),
	)
	if err != nil {
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

// RecordSessionAdmitted records a session entering the Running state.
func (m *Metrics) RecordSessionAdmitted(ctx context.Context, kind string) {
	attrs := metric.WithAttributes(kindAttr(kind))
	m.SessionsTotal.Add(ctx, 1, attrs)
	m.SessionsActive.Add(ctx, 1, attrs)
}

// RecordSessionRejected records an admission rejected by the single-flight gate.
func (m *Metrics) RecordSessionRejected(ctx context.Context, kind string) {
	m.AdmissionRejects.Add(ctx, 1, metric.WithAttributes(kindAttr(kind)))
}

// RecordSessionFinalized records a session reaching a terminal state.
func (m *Metrics) RecordSessionFinalized(ctx context.Context, kind, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(kindAttr(kind), outcomeAttr(outcome))
	m.SessionDuration.Record(ctx, durationSeconds, attrs)
	m.SessionsActive.Add(ctx, -1, metric.WithAttributes(kindAttr(kind)))

	if outcome == "failed" {
		m.SessionErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordNotifyDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a failed event delivery.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// RecordNotifyDropped records a dropped event.
func (m *Metrics) RecordNotifyDropped(ctx context.Context) {
	m.NotifyDropped.Add(ctx, 1)
}
