package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScrapeMetrics holds metrics for fire data ingestion runs.
type ScrapeMetrics struct {
	runCounter      metric.Int64Counter
	errorCounter    metric.Int64Counter
	insertedCounter metric.Int64Counter
	failedCounter   metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
}

// InitScrapeMetrics initializes scrape metrics.
func InitScrapeMetrics(logger *slog.Logger) (*ScrapeMetrics, error) {
	meter := otel.Meter("firewatch/scraper")

	runCounter, err := meter.Int64Counter(
		"scrape.runs.total",
		metric.WithDescription("Total number of scrape runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape run counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"scrape.errors.total",
		metric.WithDescription("Total number of scrape runs aborted by an upstream error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape error counter: %w", err)
	}

	insertedCounter, err := meter.Int64Counter(
		"scrape.rows.inserted.total",
		metric.WithDescription("Total number of scraped rows inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape inserted counter: %w", err)
	}

	failedCounter, err := meter.Int64Counter(
		"scrape.rows.failed.total",
		metric.WithDescription("Total number of scraped rows that could not be inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape failed counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"scrape.duration",
		metric.WithDescription("Duration of scrape runs in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"scrape.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful scrape run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape last success gauge: %w", err)
	}

	metrics := &ScrapeMetrics{
		runCounter:      runCounter,
		errorCounter:    errorCounter,
		insertedCounter: insertedCounter,
		failedCounter:   failedCounter,
		durationHist:    durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register scrape gauge callback: %w", err)
	}

	logger.Info("scrape metrics initialized")
	return metrics, nil
}

// RecordRun records one scrape run. trigger is "request" or "schedule".
func (m *ScrapeMetrics) RecordRun(ctx context.Context, duration time.Duration, inserted, failed int, err error, trigger string) {
	if m == nil {
		return
	}
	success := err == nil
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}
	m.runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}

	m.insertedCounter.Add(ctx, int64(inserted))
	m.failedCounter.Add(ctx, int64(failed))
	m.lastSuccessUnix.Store(time.Now().Unix())
}
