package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/version"
)

// probeTimeout bounds each dependency probe in a readiness check.
const probeTimeout = 5 * time.Second

// Pinger reports whether a backing dependency is reachable. Implementations
// must be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses, e.g. "qdrant".
	Name() string
}

// optional is implemented by pingers whose failure degrades the service
// without making it unready (the Redis cache, the history log).
type optional interface {
	Optional() bool
}

func isOptional(p Pinger) bool {
	o, ok := p.(optional)
	return ok && o.Optional()
}

type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready. Status is "ready",
// "degraded" when only optional checks failed, or "unavailable".
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Status string       `json:"status"`
	Checks []readyCheck `json:"checks"`
}

// probeAll pings every dependency concurrently. Results keep the order of
// pingers.
func probeAll(ctx context.Context, pingers []Pinger) []readyCheck {
	checks := make([]readyCheck, len(pingers))

	var wg sync.WaitGroup
	for i, p := range pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(pctx)
			c := readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				Optional:  isOptional(p),
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				c.Error = err.Error()
			}
			checks[i] = c
		}()
	}
	wg.Wait()
	return checks
}

// handleReady handles GET /api/ready. It answers 503 only when a required
// dependency is down; a failing cache or history log reports "degraded"
// with 200.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Status: "ready", Checks: probeAll(r.Context(), s.pingers)}
	for _, c := range resp.Checks {
		if s.metrics != nil {
			up := 0.0
			if c.OK {
				up = 1
			}
			s.metrics.dependencyUp.WithLabelValues(c.Name).Set(up)
		}
		if c.OK {
			continue
		}
		log.Warn("readiness probe failed",
			slog.String("dependency", c.Name),
			slog.Bool("optional", c.Optional),
			slog.String("error", c.Error),
		)
		if c.Optional {
			if resp.Ready {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Ready = false
		resp.Status = "unavailable"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// handleHealth handles GET /api/health. It never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.BuildDate,
	})
}
