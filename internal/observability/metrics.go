package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/arnobt78/multimodel-chat"

// Metrics holds the OpenTelemetry instruments for chat completions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// ChatRequests counts orchestrated requests by answering backend and outcome
	ChatRequests metric.Int64Counter

	// ChatDuration tracks end-to-end request latency
	ChatDuration metric.Float64Histogram

	// BackendAttempts counts calls to individual backends by result kind
	BackendAttempts metric.Int64Counter

	// BackendDuration tracks single backend call latency
	BackendDuration metric.Float64Histogram

	// Suppressions counts cooldown marks per backend
	Suppressions metric.Int64Counter

	// TelemetryDropped counts events dropped because the emitter buffer was full
	TelemetryDropped metric.Int64Counter
}

var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60,
}

// NewMetrics creates the instruments on the given provider
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChatRequests, err = m.Int64Counter("chat.requests",
		metric.WithDescription("Chat completion requests by backend and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("chat.duration",
		metric.WithDescription("End-to-end chat completion latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendAttempts, err = m.Int64Counter("chat.backend.attempts",
		metric.WithDescription("Backend calls by backend and result kind."),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("chat.backend.duration",
		metric.WithDescription("Latency of a single backend call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Suppressions, err = m.Int64Counter("chat.backend.suppressions",
		metric.WithDescription("Backends placed in rate-limit cooldown."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryDropped, err = m.Int64Counter("chat.telemetry.dropped",
		metric.WithDescription("Telemetry events dropped because the buffer was full."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordAttempt records one backend call. kind is empty on success.
func (m *Metrics) RecordAttempt(ctx context.Context, backend, kind string, d time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.BackendAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("kind", kind),
	))
	m.BackendDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("backend", backend),
	))
}

// RecordSuppression records a backend entering cooldown
func (m *Metrics) RecordSuppression(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.Suppressions.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordChat records one completed chat request
func (m *Metrics) RecordChat(ctx context.Context, backend string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.ChatRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
	m.ChatDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordDropped records a telemetry event lost to a full buffer
func (m *Metrics) RecordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.TelemetryDropped.Add(ctx, 1)
}
