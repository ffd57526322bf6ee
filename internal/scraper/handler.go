package scraper

import (
	"errors"
	"log/slog"
	"net/http"

	"firewatch/internal/logging"
	"firewatch/internal/scope"

	"github.com/goccy/go-json"
)

// ScopeCategory is the scope category guarding GET /scrape.
const ScopeCategory = "scrape"

// Handler serves GET /scrape.
type Handler struct {
	runner Runner
}

// NewHandler wraps a runner.
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	granted, _ := scope.FromContext(r.Context())
	if !granted.Allows(ScopeCategory, scope.ActionGet) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	res, err := h.runner.Run(r.Context(), "http")
	if err != nil {
		logging.FromContext(r.Context()).Error("scrape request failed", slog.String("error", err.Error()))
		msg := "internal error"
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			msg = "Unable to gather global_24h VIIRS data."
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
