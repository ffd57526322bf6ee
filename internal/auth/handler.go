package auth

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"firewatch/internal/logging"
	"firewatch/internal/observability"

	"github.com/goccy/go-json"
)

// Authenticator resolves an email/password pair into user details.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (UserDetails, error)
}

// TokenHandler serves POST /token.
type TokenHandler struct {
	store   Authenticator
	tokens  *TokenManager
	metrics *observability.SecurityMetrics
}

// NewTokenHandler returns the token endpoint handler. metrics may be nil.
func NewTokenHandler(store Authenticator, tokens *TokenManager, metrics *observability.SecurityMetrics) *TokenHandler {
	return &TokenHandler{store: store, tokens: tokens, metrics: metrics}
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Status      string      `json:"status"`
	UserDetails UserDetails `json:"user_details"`
	Token       string      `json:"token"`
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx).WithComponent("auth")
	h.metrics.RecordAuthAttempt(ctx, r.URL.Path)

	req, err := readTokenRequest(r)
	if err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.metrics.RecordAuthFailure(ctx, r.URL.Path, "missing_credentials")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "error": "email and password are required"})
		return
	}

	details, err := h.store.Authenticate(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.metrics.RecordAuthFailure(ctx, r.URL.Path, "invalid_credentials")
			logger.Warn("token request rejected", slog.String("remote_addr", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "error": "invalid credentials"})
			return
		}
		h.metrics.RecordAuthFailure(ctx, r.URL.Path, "lookup_failed")
		logger.Error("credential lookup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "internal error"})
		return
	}

	token, _, err := h.tokens.Issue(details.ID, details.Scope)
	if err != nil {
		logger.Error("token signing failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "internal error"})
		return
	}

	h.metrics.RecordAuthSuccess(ctx, r.URL.Path, "password")
	h.metrics.RecordTokenIssued(ctx)
	logger.Info("token issued", slog.Int64("user_id", details.ID))
	writeJSON(w, http.StatusCreated, tokenResponse{Status: "ok", UserDetails: details, Token: token})
}

// readTokenRequest accepts a JSON body or form values.
func readTokenRequest(r *http.Request) (tokenRequest, error) {
	var req tokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.Form.Get("email")
	req.Password = r.Form.Get("password")
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
