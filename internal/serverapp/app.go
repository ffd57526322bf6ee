// Package serverapp wires configuration, the database, the resource
// handlers and the scraper into a running HTTP server.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"firewatch/internal/auth"
	"firewatch/internal/config"
	"firewatch/internal/dbexec"
	"firewatch/internal/logging"
	"firewatch/internal/observability"
	"firewatch/internal/scraper"
)

// App owns runtime resources for the firewatch server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider   *observability.MeterProvider
	apiMetrics      *observability.APIMetrics
	scrapeMetrics   *observability.ScrapeMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	exec       dbexec.QueryExecutor

	tokens    *auth.TokenManager
	scraper   *scraper.Scraper
	scheduler *scraper.Scheduler

	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu         sync.Mutex
	initialized     bool
	started         bool
	serverErrors    chan error
	schedulerCancel context.CancelFunc

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler once Init has run.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
