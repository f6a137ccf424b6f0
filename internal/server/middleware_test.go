package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"gw-1234":                true,
		"":                       false,
		"has space":              false,
		"tab\there":              false,
		strings.Repeat("a", 129): false,
		strings.Repeat("a", 128): true,
	}
	for in, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if in != "" {
			req.Header.Set(requestIDHeader, in)
		}
		got := requestID(req)
		require.NotEmpty(t, got)
		assert.Equal(t, kept, got == in, "%q", in)
	}
}

func TestRequestLogger_PropagatesIDAndLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := requestLogger(base, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations/today", nil)
	req.Header.Set(requestIDHeader, "gw-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "gw-42", w.Header().Get(requestIDHeader))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "gw-42", rec["request_id"])
	assert.Equal(t, "WARN", rec["level"])
	assert.InDelta(t, http.StatusTeapot, rec["status"], 0)
	assert.InDelta(t, 5, rec["bytes"], 0)
}

func TestRequestLogger_QuietHealthPaths(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	requestLogger(base, okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Empty(t, buf.String())
}

func TestRequestLogger_RecoversPanic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestLogger(base, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/recommendations/single", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Contains(t, buf.String(), "handler panic")
}
