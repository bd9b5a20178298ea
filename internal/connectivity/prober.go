package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// HealthChecker is the single probe call the prober needs.
// Implemented by api.Client.
type HealthChecker interface {
	ProbeHealth(ctx context.Context) error
}

// Prober feeds a Monitor by probing the service health endpoint on a
// fixed interval. Probe outcomes map straight onto Monitor.Set, so the
// monitor's transition coalescing decides whether anyone hears about it.
type Prober struct {
	monitor  *Monitor
	checker  HealthChecker
	interval time.Duration
	logger   *slog.Logger
}

// NewProber creates a Prober. interval must be positive.
func NewProber(monitor *Monitor, checker HealthChecker, interval time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		monitor:  monitor,
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// Run probes immediately and then on every tick until ctx is cancelled.
// It blocks; run it on its own goroutine.
func (p *Prober) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	err := p.checker.ProbeHealth(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}

	online := err == nil
	if online != p.monitor.Online() {
		p.logger.Info("connectivity changed", slog.Bool("online", online))
	}
	p.monitor.Set(online)
}
