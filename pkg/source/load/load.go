// Package load implements the "load" source: it polls host load averages
// via gopsutil and emits gauge metrics.
package load

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/user/beacon"
)

const pollInterval = 3 * time.Second

// Source reports the 1/5/15-minute load averages. It has no configuration
// fields.
type Source struct {
	logger beacon.Logger
}

// New builds a load Source.
func New() *Source { return &Source{} }

// SetLogger wires an optional structured logger.
func (s *Source) SetLogger(l beacon.Logger) { s.logger = l }

// Produce polls every pollInterval until ctx is cancelled.
func (s *Source) Produce(ctx context.Context, client beacon.Client) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.poll(client, now); err != nil {
				return err
			}
		}
	}
}

func (s *Source) poll(client beacon.Client, now time.Time) error {
	avg, err := load.Avg()
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("load poll failed", "err", err)
		}
		return nil
	}
	metrics := []beacon.Metric{
		{Name: "load1", Value: avg.Load1, Type: beacon.MetricGauge, Category: "load", Timestamp: now},
		{Name: "load5", Value: avg.Load5, Type: beacon.MetricGauge, Category: "load", Timestamp: now},
		{Name: "load15", Value: avg.Load15, Type: beacon.MetricGauge, Category: "load", Timestamp: now},
	}
	return client.SendMetrics(metrics)
}
