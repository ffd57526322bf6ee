package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics holds request metrics for the REST resources.
type APIMetrics struct {
	requestDuration  metric.Float64Histogram
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	activeRequests   metric.Int64UpDownCounter
	resultsCount     metric.Int64Histogram
	validationFailed metric.Int64Counter
}

// InitAPIMetrics initializes resource request metrics.
func InitAPIMetrics() (*APIMetrics, error) {
	meter := otel.Meter("firewatch")

	requestDuration, err := meter.Float64Histogram(
		"api.request.duration",
		metric.WithDescription("Duration of resource requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"api.requests.total",
		metric.WithDescription("Total number of resource requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"api.errors.total",
		metric.WithDescription("Total number of resource requests answered with a server error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"api.requests.active",
		metric.WithDescription("Number of in-flight resource requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"api.results.count",
		metric.WithDescription("Number of rows returned by get and search requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	validationFailed, err := meter.Int64Counter(
		"api.validation.failures.total",
		metric.WithDescription("Total number of requests rejected by field validation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation failure counter: %w", err)
	}

	return &APIMetrics{
		requestDuration:  requestDuration,
		requestCounter:   requestCounter,
		errorCounter:     errorCounter,
		activeRequests:   activeRequests,
		resultsCount:     resultsCount,
		validationFailed: validationFailed,
	}, nil
}

// RecordRequest records a finished resource request. A nil receiver is a no-op.
func (m *APIMetrics) RecordRequest(ctx context.Context, resource, action string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("resource", resource),
		attribute.String("action", action),
		attribute.String("status", strconv.Itoa(status)),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if status >= 500 {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource", resource),
			attribute.String("action", action),
		))
	}
}

// RecordResultsCount records how many rows a read returned.
func (m *APIMetrics) RecordResultsCount(ctx context.Context, resource string, count int) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, int64(count), metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordValidationFailure counts a request rejected for field errors.
func (m *APIMetrics) RecordValidationFailure(ctx context.Context, resource, action string, fields int) {
	if m == nil {
		return
	}
	m.validationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("action", action),
		attribute.Int("fields", fields),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *APIMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *APIMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the API metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*APIMetrics, error) {
	metrics, err := InitAPIMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API metrics: %w", err)
	}

	logger.Info("API metrics initialized")
	return metrics, nil
}
