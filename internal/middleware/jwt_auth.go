package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"firewatch/internal/auth"
	"firewatch/internal/logging"
	"firewatch/internal/observability"
	"firewatch/internal/scope"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// JWTAuthConfig controls which paths skip bearer token checks.
type JWTAuthConfig struct {
	ExemptPaths []string
}

// JWTAuthMiddleware requires a valid bearer token on every non-exempt path
// and stores the token's scope and claims in the request context. A request
// that already carries a scope, granted by TriggerTokenMiddleware, passes
// through untouched.
func JWTAuthMiddleware(verifier TokenVerifier, cfg JWTAuthConfig, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	exempt := pathSet(cfg.ExemptPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			if _, skip := exempt[endpoint]; skip {
				next.ServeHTTP(w, r)
				return
			}
			if _, granted := scope.FromContext(ctx); granted {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordAuthAttempt(ctx, endpoint)
			reqLogger := logging.FromContext(ctx).WithComponent("auth")

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				metrics.RecordAuthFailure(ctx, endpoint, "missing_token")
				metrics.RecordUnauthorizedAttempt(ctx, endpoint, "missing_token")
				reqLogger.Warn("authentication failed: missing bearer token",
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				reason := auth.FailureReason(err)
				metrics.RecordAuthFailure(ctx, endpoint, "token_verification_failed")
				metrics.RecordTokenValidationError(ctx, reason)
				metrics.RecordUnauthorizedAttempt(ctx, endpoint, "invalid_token")
				reqLogger.Warn("token validation failed",
					slog.String("error", err.Error()),
					slog.String("reason", reason),
					slog.String("endpoint", endpoint),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			metrics.RecordAuthSuccess(ctx, endpoint, "jwt")
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.user_id", strconv.FormatInt(claims.UserID, 10)),
					attribute.Bool("auth.authenticated", true),
				)
			}

			ctx = auth.WithClaims(ctx, claims)
			ctx = scope.WithScope(ctx, claims.Scope)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(slog.Int64("user_id", claims.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}
