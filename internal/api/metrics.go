package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sentryline/brandscan/internal/infra/eventbus/kafka"
)

const namespace = "scan_api"

// APIMetrics defines the metrics operations the scan API needs. It includes
// the event bus counters so one collector serves both the HTTP surface and
// the transport underneath it.
type APIMetrics interface {
	kafka.EventBusMetrics

	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
	IncEnqueueRequests(ctx context.Context)
	IncAdmissionRejections(ctx context.Context, reason string)
	AddEventStreams(ctx context.Context, delta int64)
}

type apiMetrics struct {
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	requestsTotal       metric.Int64Counter
	requestDuration     metric.Float64Histogram
	enqueueRequests     metric.Int64Counter
	admissionRejections metric.Int64Counter
	eventStreams        metric.Int64UpDownCounter
}

// NewAPIMetrics builds the API metric set on the given meter provider.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if m.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if m.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.enqueueRequests, err = meter.Int64Counter(
		"enqueue_requests_total",
		metric.WithDescription("Total number of scan enqueue requests"),
	); err != nil {
		return nil, err
	}

	if m.admissionRejections, err = meter.Int64Counter(
		"admission_rejections_total",
		metric.WithDescription("Total number of rejected scan enqueue requests"),
	); err != nil {
		return nil, err
	}

	if m.eventStreams, err = meter.Int64UpDownCounter(
		"event_streams_active",
		metric.WithDescription("Number of open progress event streams"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *apiMetrics) IncEnqueueRequests(ctx context.Context) {
	m.enqueueRequests.Add(ctx, 1)
}

func (m *apiMetrics) IncAdmissionRejections(ctx context.Context, reason string) {
	m.admissionRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *apiMetrics) AddEventStreams(ctx context.Context, delta int64) {
	m.eventStreams.Add(ctx, delta)
}
