package server

import (
	"context"
	"fmt"
)

// PingFunc adapts a plain probe function into a Pinger. The vector index,
// the relational store, the Redis cache and the history log all expose a
// Ping(ctx) method that fits.
type PingFunc struct {
	// Label identifies the dependency in readiness responses.
	Label string
	Probe func(ctx context.Context) error
	// Degradable marks a dependency the service can run without.
	Degradable bool
}

// NewPinger wraps probe under the given label.
func NewPinger(label string, probe func(ctx context.Context) error) *PingFunc {
	return &PingFunc{Label: label, Probe: probe}
}

// NewOptionalPinger is NewPinger for a dependency whose outage only
// degrades the service.
func NewOptionalPinger(label string, probe func(ctx context.Context) error) *PingFunc {
	return &PingFunc{Label: label, Probe: probe, Degradable: true}
}

// Name returns the dependency label used in readiness responses.
func (p *PingFunc) Name() string { return p.Label }

// Optional reports whether a failed probe leaves the service ready.
func (p *PingFunc) Optional() bool { return p.Degradable }

// Ping runs the probe.
func (p *PingFunc) Ping(ctx context.Context) error {
	if p.Probe == nil {
		return fmt.Errorf("no probe configured")
	}
	if err := p.Probe(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
