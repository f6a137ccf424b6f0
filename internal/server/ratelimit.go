package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/eatwhat-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-client rate on the
	// recommendation routes, in requests per second.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst.
	defaultRateBurst = 20
	// visitorIdle is how long an unused client bucket is kept.
	visitorIdle = 5 * time.Minute
)

// visitor is one client's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles the recommendation routes per client. The limit is
// enforced before the request body is read.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	rps        rate.Limit
	burst      int
	trustProxy bool
	// rejected counts 429s per handler; nil disables counting.
	rejected *prometheus.CounterVec
	now      func() time.Time
}

// limiterConfig configures newRateLimiter.
type limiterConfig struct {
	RPS   float64
	Burst int
	// TrustProxy keys clients by the first X-Forwarded-For address.
	TrustProxy bool
	Rejected   *prometheus.CounterVec
}

// newRateLimiter starts a limiter and its idle-bucket sweeper. The returned
// function stops the sweeper.
func newRateLimiter(cfg limiterConfig) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors:   make(map[string]*visitor),
		rps:        rate.Limit(cfg.RPS),
		burst:      cfg.Burst,
		trustProxy: cfg.TrustProxy,
		rejected:   cfg.Rejected,
		now:        time.Now,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()

	return rl, func() { close(done) }
}

// reserve takes a token for client and returns how long the caller would
// have to wait for it. A non-zero wait means the request is rejected and
// the token is handed back.
func (rl *rateLimiter) reserve(client string) time.Duration {
	now := rl.now()

	rl.mu.Lock()
	v, ok := rl.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[client] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64)
	}
	wait := res.DelayFrom(now)
	if wait > 0 {
		res.CancelAt(now)
	}
	return wait
}

// sweep drops buckets idle for longer than visitorIdle.
func (rl *rateLimiter) sweep() {
	cutoff := rl.now().Add(-visitorIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, client)
		}
	}
}

// middleware rejects over-limit requests with 429, a JSON error body and a
// Retry-After header rounded up to whole seconds.
func (rl *rateLimiter) middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := rl.clientKey(r)
		wait := rl.reserve(client)
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("client", client),
			slog.String("handler", handler),
			slog.Duration("retry_after", wait),
		)
		if rl.rejected != nil {
			rl.rejected.WithLabelValues(handler).Inc()
		}
		w.Header().Set("Retry-After", retryAfter(wait))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})
}

// clientKey identifies the caller: the first X-Forwarded-For hop when the
// server sits behind a trusted proxy, else the remote address without port.
func (rl *rateLimiter) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	return clientIP(r)
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfter formats wait as whole seconds, at least 1.
func retryAfter(wait time.Duration) string {
	if wait >= time.Duration(math.MaxInt64) {
		return "3600"
	}
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
