package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// Metrics holds the Prometheus collectors for recommendation calls.
type Metrics struct {
	// requestsTotal counts recommendation calls by operation, provider and
	// outcome.
	requestsTotal *prometheus.CounterVec

	// durationSeconds records the wall-clock duration of each call,
	// including every meal pass of daily and weekly plans.
	durationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the recommendation metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eatwhat",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total number of recommendation calls, partitioned by operation, provider and outcome.",
		}, []string{"operation", "provider", "outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eatwhat",
			Subsystem: "recommend",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of recommendation calls.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(op, provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op, provider, outcome(err)).Inc()
	m.durationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// outcome classifies err into a low-cardinality label value.
func outcome(err error) string {
	var (
		cfgErr   *apperr.ConfigurationError
		tErr     *apperr.TransportError
		toErr    *apperr.TimeoutError
		emptyErr *apperr.EmptyResultError
		pErr     *recipe.ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &toErr):
		return "timeout"
	case errors.As(err, &tErr):
		return "transport"
	case errors.As(err, &emptyErr):
		return "empty"
	case errors.As(err, &pErr):
		return "parse"
	default:
		return "error"
	}
}
