// Package memory implements the "memory" source: it polls host memory
// usage via gopsutil and emits gauge metrics.
package memory

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/user/beacon"
)

const pollInterval = 3 * time.Second

// Source reports total/used/available bytes and percent-used for host
// memory. It has no configuration fields.
type Source struct {
	logger beacon.Logger
}

// New builds a memory Source.
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
	vm, err := mem.VirtualMemory()
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("memory poll failed", "err", err)
		}
		return nil
	}
	metrics := []beacon.Metric{
		{Name: "total_bytes", Value: float64(vm.Total), Type: beacon.MetricGauge, Category: "memory", Timestamp: now},
		{Name: "used_bytes", Value: float64(vm.Used), Type: beacon.MetricGauge, Category: "memory", Timestamp: now},
		{Name: "available_bytes", Value: float64(vm.Available), Type: beacon.MetricGauge, Category: "memory", Timestamp: now},
		{Name: "used_percent", Value: vm.UsedPercent, Type: beacon.MetricGauge, Category: "memory", Timestamp: now},
	}
	return client.SendMetrics(metrics)
}
