// Package scraper ingests the NASA FIRMS active fire CSV into the fire table.
package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	_ "time/tzdata"

	"firewatch/internal/dbexec"
	"firewatch/internal/logging"
	"firewatch/internal/observability"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultURL is the VIIRS 375m global 24h feed.
const DefaultURL = "https://firms.modaps.eosdis.nasa.gov/data/active_fire/suomi-npp-viirs-c2/csv/SUOMI_VIIRS_C2_Global_24h.csv"

// DefaultTimezone is where acquisition times are stored.
const DefaultTimezone = "Europe/London"

// Config controls fetching and storage.
type Config struct {
	URL      string
	Timeout  time.Duration
	RetryMax int
	Timezone string
}

// Result counts the rows a run stored and rejected.
type Result struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// UpstreamError means the feed could not be fetched.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "fetch fire feed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Scraper fetches the feed and inserts each row.
type Scraper struct {
	url     string
	client  *retryablehttp.Client
	exec    dbexec.QueryExecutor
	loc     *time.Location
	logger  *logging.Logger
	metrics *observability.ScrapeMetrics
	tracer  trace.Tracer
	group   singleflight.Group
	now     func() time.Time
}

// New returns a scraper. logger and metrics may be nil.
func New(cfg Config, exec dbexec.QueryExecutor, logger *logging.Logger, metrics *observability.ScrapeMetrics) (*Scraper, error) {
	if exec == nil {
		return nil, errors.New("scraper requires a query executor")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scraper timezone %q: %w", cfg.Timezone, err)
	}
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	logger = logger.WithComponent("scraper")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.Logger = logger.Logger
	client.HTTPClient.Timeout = cfg.Timeout
	client.HTTPClient.Transport = otelhttp.NewTransport(client.HTTPClient.Transport)

	return &Scraper{
		url:     cfg.URL,
		client:  client,
		exec:    exec,
		loc:     loc,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("firewatch/scraper"),
		now:     time.Now,
	}, nil
}

// Run performs one scrape. Concurrent callers share a single run and its
// result. trigger labels the caller in logs and metrics.
func (s *Scraper) Run(ctx context.Context, trigger string) (Result, error) {
	v, err, shared := s.group.Do("scrape", func() (any, error) {
		return s.run(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		s.logger.Debug("joined in-flight scrape", slog.String("trigger", trigger))
	}
	res, _ := v.(Result)
	return res, err
}

func (s *Scraper) run(ctx context.Context, trigger string) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "scraper.run", trace.WithAttributes(attribute.String("scrape.trigger", trigger)))
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.Int("scrape.rows.inserted", res.SuccessCount),
			attribute.Int("scrape.rows.failed", res.FailureCount),
		)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.RecordRun(ctx, time.Since(start), res.SuccessCount, res.FailureCount, err, trigger)
	}()

	body, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("fire feed unavailable", slog.String("url", s.url), slog.String("error", err.Error()))
		return Result{}, err
	}
	defer body.Close()

	res, err = s.ingest(ctx, body)
	if err != nil {
		return res, err
	}
	s.logger.Info("scrape finished",
		slog.String("trigger", trigger),
		slog.Int("success_count", res.SuccessCount),
		slog.Int("failure_count", res.FailureCount),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Scraper) fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &UpstreamError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return resp.Body, nil
}

// ingest reads rows after the header and inserts them one at a time. Bad
// rows and failed inserts are counted and the loop continues.
func (s *Scraper) ingest(ctx context.Context, body io.Reader) (Result, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, nil
		}
		return Result{}, &UpstreamError{Err: fmt.Errorf("read header: %w", err)}
	}

	var (
		res      Result
		failures *multierror.Error
		line     = 1
	)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return res, &UpstreamError{Err: fmt.Errorf("read line %d: %w", line, err)}
			}
			res.FailureCount++
			failures = multierror.Append(failures, err)
			continue
		}

		record, err := parseRecord(fields, s.loc, s.now())
		if err == nil {
			err = s.insert(ctx, record)
		}
		if err != nil {
			res.FailureCount++
			failures = multierror.Append(failures, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		res.SuccessCount++
	}

	if failures != nil {
		s.logger.Warn("some fire rows were not stored",
			slog.Int("failure_count", res.FailureCount),
			slog.String("first_error", failures.Errors[0].Error()),
		)
	}
	return res, nil
}

func (s *Scraper) insert(ctx context.Context, r Record) error {
	stmt, args, err := sq.Insert("fire").
		Columns("latitude", "longitude", "confidence", "temperature", "user_submitted", "date_acquired").
		Values(r.Latitude, r.Longitude, r.Confidence, r.Temperature, 0, r.DateAcquired.Format(dateLayout)).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.exec.ExecContext(ctx, stmt, args...)
	return err
}
