package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"firewatch/internal/logging"
	"firewatch/internal/observability"
	"firewatch/internal/scope"
)

// DefaultTriggerTokenHeader carries the shared token used by cron callers.
const DefaultTriggerTokenHeader = "X-Scrape-Token"

// TriggerTokenConfig grants a fixed scope to callers presenting a shared token.
type TriggerTokenConfig struct {
	Token      string
	HeaderName string
	Grants     []scope.Grant
}

// TriggerTokenMiddleware lets schedulers call /scrape without minting a JWT.
// A matching header grants cfg.Grants; a wrong token is rejected; no header
// leaves the request to the JWT middleware.
func TriggerTokenMiddleware(cfg TriggerTokenConfig, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("trigger token is required")
	}
	header := strings.TrimSpace(cfg.HeaderName)
	if header == "" {
		header = DefaultTriggerTokenHeader
	}
	granted := scope.FromGrants(cfg.Grants)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(header))
			if provided == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			metrics.RecordAuthAttempt(ctx, r.URL.Path)
			if !constantTimeTokenMatch(provided, token) {
				metrics.RecordAuthFailure(ctx, r.URL.Path, "trigger_token_mismatch")
				metrics.RecordUnauthorizedAttempt(ctx, r.URL.Path, "invalid_trigger_token")
				logging.FromContext(ctx).WithComponent("auth").Warn("trigger token rejected",
					slog.String("endpoint", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			metrics.RecordAuthSuccess(ctx, r.URL.Path, "trigger_token")
			next.ServeHTTP(w, r.WithContext(scope.WithScope(ctx, granted.Clone())))
		})
	}, nil
}

// constantTimeTokenMatch compares SHA-256 digests of both tokens.
func constantTimeTokenMatch(provided, expected string) bool {
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}
