package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newTestLimiter(t *testing.T, cfg limiterConfig) *rateLimiter {
	t.Helper()
	rl, stop := newRateLimiter(cfg)
	t.Cleanup(stop)
	return rl
}

func hit(h http.Handler, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/recommendations/single", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, limiterConfig{RPS: 100, Burst: 5}).middleware("single", okHandler)
	for i := range 5 {
		assert.Equal(t, http.StatusOK, hit(h, "127.0.0.1:12345", nil).Code, "request %d", i)
	}
}

func TestRateLimit_RejectsWithRetryAfterAndJSON(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)
	// One token per 30s: the second request waits about 30s.
	rl := newTestLimiter(t, limiterConfig{RPS: 1.0 / 30, Burst: 1, Rejected: m.rateLimited})
	h := rl.middleware("single", okHandler)

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)

	w := hit(h, "10.0.0.2:1234", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body.Error)
	assert.InDelta(t, 1, testutil.ToFloat64(m.rateLimited.WithLabelValues("single")), 0)
}

func TestRateLimit_RejectedRequestDoesNotConsumeToken(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := newTestLimiter(t, limiterConfig{RPS: 1, Burst: 1})
	rl.now = func() time.Time { return now }
	h := rl.middleware("single", okHandler)

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.3:1", nil).Code)
	for range 3 {
		require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.3:1", nil).Code)
	}

	// A refused request hands its token back, so one second refills the bucket.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.3:1", nil).Code)
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, limiterConfig{RPS: 0.001, Burst: 1}).middleware("today", okHandler)
	for range 5 {
		hit(h, "192.168.1.1:1111", nil)
	}
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.2:2222", nil).Code)
}

func TestRateLimit_TrustProxy(t *testing.T) {
	t.Parallel()

	xff := func(ip string) map[string]string {
		return map[string]string{"X-Forwarded-For": ip + ", 10.0.0.254"}
	}

	trusted := newTestLimiter(t, limiterConfig{RPS: 0.001, Burst: 1, TrustProxy: true}).middleware("single", okHandler)
	require.Equal(t, http.StatusOK, hit(trusted, "10.0.0.254:80", xff("203.0.113.7")).Code)
	assert.Equal(t, http.StatusOK, hit(trusted, "10.0.0.254:80", xff("203.0.113.8")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(trusted, "10.0.0.254:80", xff("203.0.113.7")).Code)

	untrusted := newTestLimiter(t, limiterConfig{RPS: 0.001, Burst: 1}).middleware("single", okHandler)
	require.Equal(t, http.StatusOK, hit(untrusted, "10.0.0.254:80", xff("203.0.113.7")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(untrusted, "10.0.0.254:80", xff("203.0.113.8")).Code)
}

func TestRateLimit_SweepDropsIdleVisitors(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := newTestLimiter(t, limiterConfig{RPS: 1, Burst: 1})
	rl.now = func() time.Time { return now }

	rl.reserve("a")
	now = now.Add(visitorIdle / 2)
	rl.reserve("b")
	now = now.Add(visitorIdle/2 + time.Second)
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"127.0.0.1:54321": "127.0.0.1",
		"[::1]:8080":      "::1",
		"noport":          "noport",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		assert.Equal(t, want, clientIP(req), remote)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1", retryAfter(10*time.Millisecond))
	assert.Equal(t, "2", retryAfter(1500*time.Millisecond))
	assert.Equal(t, "3600", retryAfter(time.Duration(math.MaxInt64)))
	assert.False(t, strings.HasPrefix(retryAfter(time.Second), "0"))
}
