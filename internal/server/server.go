// Package server implements the HTTP server that exposes the recommendation
// pipeline as a JSON/SSE API. The server is started by the `eatwhat serve`
// CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/eatwhat-go/internal/logging"
)

// New constructs a Server over deps.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Recommender == nil && deps.Retriever == nil {
		return nil, fmt.Errorf("server: at least a recommender or a retriever is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 6 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: EATWHAT_API_KEY not set, API authentication disabled")
	}

	rl, stop := newRateLimiter(limiterConfig{
		RPS:        cfg.RateLimit,
		Burst:      cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
		Rejected:   s.metrics.rateLimited,
	})
	s.stopRL = stop

	mux := http.NewServeMux()
	s.routes(mux, rl)

	s.handler = requestLogger(log, mux)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

// routes registers every endpoint on mux. Liveness, readiness and metrics
// are open; everything else sits behind the Bearer check, and the
// recommendation routes additionally behind the per-client rate limit.
func (s *Server) routes(mux *http.ServeMux, rl *rateLimiter) {
	open := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, h))
	}
	protected := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, authMiddleware(s.cfg.APIKey, h)))
	}
	limited := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, authMiddleware(s.cfg.APIKey, rl.middleware(name, h))))
	}
	// Generation routes make one or more provider calls per request.
	generative := func(pattern, name string, h http.HandlerFunc) {
		limited(pattern, name, noWriteDeadline(h))
	}

	open("GET /api/health", "health", s.handleHealth)
	open("GET /api/ready", "ready", s.handleReady)
	open("GET /metrics", "metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}).ServeHTTP)

	generative("POST /api/recommendations/single", "single", s.handleSingle)
	generative("POST /api/recommendations/daily", "daily", s.handleDaily)
	generative("POST /api/recommendations/weekly", "weekly", s.handleWeekly)
	generative("POST /api/recommendations/single/stream", "single_stream", s.handleSingleStream)
	generative("POST /api/recommendations/daily/stream", "daily_stream", s.handleDailyStream)
	limited("GET /api/recommendations/today", "today", s.handleToday)
	limited("GET /api/recommendations/similar/{recipeId}", "similar", s.handleSimilar)
	limited("POST /api/recommendations/generate-image", "generate_image", s.handleGenerateImage)

	protected("GET /api/recommendations/history", "history", s.handleHistory)
	protected("POST /api/meal-plans/generate", "meal_plans", noWriteDeadline(s.handleMealPlan))
	protected("GET /api/meal-plans", "meal_plans_list", s.handleListMealPlans)
	protected("GET /api/admin/vector-status", "vector_status", s.handleVectorStatus)

	protected("GET /api/users/{userId}/preferences", "preferences_get", s.handleGetPreferences)
	protected("PUT /api/users/{userId}/preferences", "preferences_put", s.handlePutPreferences)
	protected("POST /api/users/{userId}/favorites", "favorites_add", s.handleAddFavorite)
	protected("GET /api/users/{userId}/settings", "settings_get", s.handleGetSettings)
	protected("PUT /api/users/{userId}/settings", "settings_put", s.handlePutSettings)
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("eatwhat server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Close stops background goroutines without serving; used by tests and by
// callers that never call Start.
func (s *Server) Close() {
	if s.stopRL != nil {
		s.stopRL()
		s.stopRL = nil
	}
}
