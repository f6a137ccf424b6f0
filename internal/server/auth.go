package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/eatwhat-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token for callers
// that cannot set Authorization, such as the admin scripts.
const apiKeyHeader = "X-API-Key"

// authMiddleware guards next with a shared API key. An empty apiKey turns
// the check off. Rejections answer 401 with a JSON error body and a Bearer
// challenge; the presented credential is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := credential(r)
		if got == "" {
			reject(w, r, `Bearer realm="eatwhat"`, "authorization required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			reject(w, r, `Bearer realm="eatwhat", error="invalid_token"`, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: msg})
}

// credential returns the Bearer token, falling back to X-API-Key.
func credential(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}

// bearerToken extracts <token> from "Authorization: Bearer <token>". The
// scheme is case-insensitive; anything else yields "".
func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
