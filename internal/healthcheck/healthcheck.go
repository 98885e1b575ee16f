package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperdatalab/gateway/internal/metrics"
	"github.com/hyperdatalab/gateway/internal/upstream"
)

const (
	ProbePath    = "/health"
	ProbeTimeout = 5 * time.Second
)

type Checker struct {
	target    *upstream.Upstream
	interval  time.Duration
	client    *http.Client
	collector *metrics.Collector
	logger    *slog.Logger
}

// New returns a Checker probing target every interval. collector may be nil.
func New(target *upstream.Upstream, interval time.Duration, collector *metrics.Collector, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		target:   target,
		interval: interval,
		client: &http.Client{
			Timeout: ProbeTimeout,
		},
		collector: collector,
		logger:    logger.With(slog.String("component", "healthcheck")),
	}
}

// Run probes once immediately and then on every tick until ctx is done. A
// non-positive interval probes only once.
func (c *Checker) Run(ctx context.Context) error {
	c.check(ctx)
	if c.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped",
				slog.String("upstream", c.target.String()))
			return nil

		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Checker) check(ctx context.Context) {
	healthy := c.Probe(ctx)
	if ctx.Err() != nil {
		return
	}

	if !c.target.SetHealthy(healthy) {
		return
	}

	if healthy {
		c.logger.Info("Upstream is back up",
			slog.String("upstream", c.target.String()))
	} else {
		c.logger.Warn("Upstream is down",
			slog.String("upstream", c.target.String()))
	}

	c.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventHealthChanged,
		Target:  c.target.String(),
		Healthy: healthy,
	})
}

// Probe sends one GET to the health endpoint and reports whether it answered 200.
func (c *Checker) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target.Resolve(ProbePath, ""), nil)
	if err != nil {
		return false
	}
	req.Header.Set(upstream.BypassHeader, "true")

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Health probe failed",
			slog.String("upstream", c.target.String()),
			slog.Any("err", err))
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
