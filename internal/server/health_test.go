package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/version"
)

func getReady(t *testing.T, pingers ...Pinger) (int, readyResponse) {
	t.Helper()

	s := newTestServer()
	s.pingers = pingers
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp readyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func healthy(name string) Pinger {
	return NewPinger(name, func(context.Context) error { return nil })
}

func down(name string, degradable bool) Pinger {
	probe := func(context.Context) error { return errors.New("connection refused") }
	if degradable {
		return NewOptionalPinger(name, probe)
	}
	return NewPinger(name, probe)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestServer().handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, version.Version, body.Version)
	assert.Equal(t, version.Commit, body.Commit)
}

func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	code, resp := getReady(t)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Ready)
	assert.Equal(t, "ready", resp.Status)
	assert.NotNil(t, resp.Checks)
	assert.Empty(t, resp.Checks)
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	code, resp := getReady(t, healthy("store"), healthy("qdrant"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "store", resp.Checks[0].Name)
	assert.Equal(t, "qdrant", resp.Checks[1].Name)
	for _, c := range resp.Checks {
		assert.True(t, c.OK, c.Name)
		assert.Empty(t, c.Error, c.Name)
	}
}

func TestHandleReady_RequiredDown(t *testing.T) {
	t.Parallel()

	code, resp := getReady(t, healthy("store"), down("qdrant", false), down("redis", true))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Ready)
	assert.Equal(t, "unavailable", resp.Status)
	require.Len(t, resp.Checks, 3)
	assert.False(t, resp.Checks[1].OK)
	assert.Contains(t, resp.Checks[1].Error, "connection refused")
	assert.True(t, resp.Checks[2].Optional)
}

func TestHandleReady_OptionalDownIsDegraded(t *testing.T) {
	t.Parallel()

	code, resp := getReady(t, healthy("store"), down("redis", true), down("history", true))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Ready)
	assert.Equal(t, "degraded", resp.Status)
}

func TestReadinessChecks_RunConcurrently(t *testing.T) {
	t.Parallel()

	// Each probe waits until both have started, so a sequential run would
	// hit the probe timeout instead of returning promptly.
	var started atomic.Int32
	both := make(chan struct{})
	probe := func(ctx context.Context) error {
		if started.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	checks := probeAll(ctx, []Pinger{NewPinger("a", probe), NewPinger("b", probe)})

	require.Len(t, checks, 2)
	assert.True(t, checks[0].OK, checks[0].Error)
	assert.True(t, checks[1].OK, checks[1].Error)
}
