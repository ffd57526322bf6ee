package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"firewatch/internal/auth"
	"firewatch/internal/config"
	"firewatch/internal/dbexec"
	"firewatch/internal/logging"
	"firewatch/internal/middleware"
	"firewatch/internal/observability"
	"firewatch/internal/resource"
	"firewatch/internal/resources"
	"firewatch/internal/scope"
	"firewatch/internal/scraper"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	tokenPath   = "/token"
	healthPath  = "/health"
	metricsPath = "/metrics"
	scrapePath  = "/scrape"
)

type routerDeps struct {
	cfg             *config.Config
	logger          *logging.Logger
	ping            func(context.Context) error
	exec            dbexec.QueryExecutor
	tokens          *auth.TokenManager
	scraper         scraper.Runner
	apiMetrics      *observability.APIMetrics
	securityMetrics *observability.SecurityMetrics
	metricsEnabled  bool
}

func buildRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	store := auth.NewCredentialStore(d.exec, d.cfg.Auth.ScopeCacheSize, d.cfg.Auth.ScopeCacheTTL)
	r.Handle(tokenPath, auth.NewTokenHandler(store, d.tokens, d.securityMetrics)).Methods(http.MethodPost)
	r.Handle(healthPath, healthHandler(d.ping, d.cfg.Server.HealthCheckTimeout)).Methods(http.MethodGet)
	if d.metricsEnabled {
		r.Handle(metricsPath, promhttp.Handler()).Methods(http.MethodGet)
		d.logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	r.Handle(scrapePath, scraper.NewHandler(d.scraper))

	compress := func(h http.Handler) http.Handler { return h }
	if d.cfg.Server.CompressionEnabled {
		compress = handlers.CompressHandler
	}
	for _, res := range resources.All(d.exec, resources.Options{BcryptCost: d.cfg.Auth.BcryptCost}) {
		h := compress(resource.NewHandler(res, d.exec, d.apiMetrics))
		base := "/" + res.Definition().RoutePath()
		r.Handle(base, h)
		r.Handle(base+"/{id}", h)
		d.logger.Debug("resource routed", slog.String("resource", res.Definition().Table), slog.String("path", base))
	}
	return r
}

// wrapHTTPHandler applies the middleware chain. From the outside in: rate
// limit, CORS, tracing, request logging, trigger token, JWT.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler, tokens middleware.TokenVerifier, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	handler = middleware.JWTAuthMiddleware(tokens, middleware.JWTAuthConfig{
		ExemptPaths: []string{tokenPath, healthPath, metricsPath},
	}, securityMetrics)(handler)

	if cfg.Scraper.TriggerToken != "" {
		trigger, err := middleware.TriggerTokenMiddleware(middleware.TriggerTokenConfig{
			Token:  cfg.Scraper.TriggerToken,
			Grants: []scope.Grant{{Category: scraper.ScopeCategory, Action: scope.ActionGet}},
		}, securityMetrics)
		if err != nil {
			return nil, err
		}
		handler = trigger(handler)
		logger.Info("scrape trigger token enabled", slog.String("header", middleware.DefaultTriggerTokenHeader))
	}

	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	handler = middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		ExposeHeaders:    cfg.Server.CORSExposeHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(handler)

	handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled:     cfg.Server.RateLimitEnabled,
		RPS:         cfg.Server.RateLimitRPS,
		Burst:       cfg.Server.RateLimitBurst,
		ExemptPaths: []string{healthPath, metricsPath},
	})(handler)

	return handler, nil
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute collapses ids so span names stay low-cardinality:
// /fires/12 becomes /fires/{id}; /fires/searches is kept.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", tokenPath, healthPath, metricsPath, scrapePath:
		return rawPath
	}
	parts := strings.Split(strings.Trim(rawPath, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return "/" + parts[0]
	case len(parts) == 2 && parts[1] == resource.SearchesID:
		return "/" + parts[0] + "/" + resource.SearchesID
	case len(parts) == 2:
		return "/" + parts[0] + "/{id}"
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("health_endpoint", healthPath),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.Bool("compression", cfg.Server.CompressionEnabled),
			slog.Duration("scrape_interval", cfg.Scraper.Interval),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler pings the database with a short timeout.
func healthHandler(ping func(context.Context) error, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "failed"})
			return
		}

		reqLogger.Debug("health check passed")
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
