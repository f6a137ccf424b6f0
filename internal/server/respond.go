package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/logging"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err onto a status code and writes it as {"error": ...}.
// Server-side failures are logged; their messages are not echoed verbatim
// when they carry no typed cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	var bad *badRequestError
	status := apperr.HTTPStatus(err)
	switch {
	case errors.As(err, &bad):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the answer.
		log.Info("request cancelled")
		return
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// unavailable answers 503 for routes whose dependency is not configured.
func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: what + " is not configured"})
}
