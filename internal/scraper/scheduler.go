package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"firewatch/internal/logging"
)

// Runner performs one scrape.
type Runner interface {
	Run(ctx context.Context, trigger string) (Result, error)
}

// Scheduler runs the scraper on a fixed interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *logging.Logger
	wg       sync.WaitGroup
}

// NewScheduler returns a scheduler. An interval of zero disables it.
func NewScheduler(runner Runner, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger.WithComponent("scraper")}
}

// Start begins the background loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("scheduled scraping disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Wait blocks until the loop has stopped or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("scheduled scraping started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled scraping stopped")
			return
		case <-ticker.C:
			if _, err := s.runner.Run(ctx, "schedule"); err != nil {
				s.logger.Warn("scheduled scrape failed", slog.String("error", err.Error()))
			}
		}
	}
}
