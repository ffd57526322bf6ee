package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"firewatch/internal/dbexec"
)

// Init acquires every runtime resource in dependency order. A failure
// releases whatever was already acquired. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, apiMetrics, scrapeMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to MySQL",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.cfg.Database.Database),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	exec := dbexec.NewStandardExecutor(db)

	tokens, err := buildTokenManager(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	fireScraper, scheduler, err := buildScraper(a.cfg, a.logger, exec, scrapeMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	router := buildRouter(routerDeps{
		cfg:             a.cfg,
		logger:          a.logger,
		ping:            db.PingContext,
		exec:            exec,
		tokens:          tokens,
		scraper:         fireScraper,
		apiMetrics:      apiMetrics,
		securityMetrics: securityMetrics,
		metricsEnabled:  meterProvider != nil,
	})
	handler, err := wrapHTTPHandler(a.cfg, a.logger, router, tokens, securityMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP middleware: %w", err)
	}

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})
	cleanup.push("scrape scheduler", func(shutdownCtx context.Context) error {
		a.stateMu.Lock()
		cancel := a.schedulerCancel
		a.stateMu.Unlock()
		if cancel != nil {
			cancel()
		}
		return scheduler.Wait(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.apiMetrics = apiMetrics
	a.scrapeMetrics = scrapeMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.exec = exec
	a.tokens = tokens
	a.scraper = fireScraper
	a.scheduler = scheduler
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
