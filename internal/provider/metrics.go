package provider

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// Metrics holds the Prometheus collectors for provider calls.
type Metrics struct {
	// callsTotal counts provider calls by provider, mode and outcome.
	callsTotal *prometheus.CounterVec
	// callDuration records provider call latency by provider and mode.
	callDuration *prometheus.HistogramVec
}

// NewMetrics registers the provider metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eatwhat",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of provider calls, partitioned by provider, mode (blocking|stream) and outcome.",
		}, []string{"provider", "mode", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eatwhat",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Wall-clock duration of provider calls.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "mode"}),
	}
}

// outcome classifies err into a low-cardinality label value.
func outcome(err error) string {
	var (
		cfgErr   *apperr.ConfigurationError
		tErr     *apperr.TransportError
		toErr    *apperr.TimeoutError
		emptyErr *apperr.EmptyResultError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &toErr):
		return "timeout"
	case errors.As(err, &tErr):
		return "transport"
	case errors.As(err, &emptyErr):
		return "empty"
	case errors.As(err, &cfgErr):
		return "config"
	default:
		return "parse"
	}
}

// instrumented decorates a Provider with call metrics.
type instrumented struct {
	Provider
	m *Metrics
}

// Instrument wraps p so every call is counted and timed. A nil m returns p
// unchanged.
func Instrument(p Provider, m *Metrics) Provider {
	if m == nil || p == nil {
		return p
	}
	return &instrumented{Provider: p, m: m}
}

// InstrumentAll applies Instrument to every provider in ps.
func InstrumentAll(ps map[Kind]Provider, m *Metrics) map[Kind]Provider {
	out := make(map[Kind]Provider, len(ps))
	for k, p := range ps {
		out[k] = Instrument(p, m)
	}
	return out
}

func (i *instrumented) observe(mode string, start time.Time, err error) {
	kind := string(i.Kind())
	i.m.callsTotal.WithLabelValues(kind, mode, outcome(err)).Inc()
	i.m.callDuration.WithLabelValues(kind, mode).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Complete(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	res, err := i.Provider.Complete(ctx, req)
	i.observe("blocking", start, err)
	return res, err
}

func (i *instrumented) Stream(ctx context.Context, req *Request, onChunk func(string)) error {
	start := time.Now()
	err := i.Provider.Stream(ctx, req, onChunk)
	i.observe("stream", start, err)
	return err
}
