// Package disk implements the "disks" source: it polls per-device usage
// counters via gopsutil and emits them as gauge metrics.
package disk

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/user/beacon"
)

// pollInterval is the fixed cadence at which host pollers sample the
// system. Unconfigurable by design (spec open question): a future version
// may expose it.
const pollInterval = 3 * time.Second

// Source reports used/total/free bytes and percent-used for each
// configured device's mountpoint.
type Source struct {
	Disks  []string
	logger beacon.Logger
}

// New builds a disks Source reporting on the given device names.
func New(disks []string) *Source {
	return &Source{Disks: disks}
}

// SetLogger wires an optional structured logger.
func (s *Source) SetLogger(l beacon.Logger) { s.logger = l }

// Produce polls every pollInterval until ctx is cancelled, emitting one
// metric per tracked device per field.
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

// poll returns an error only when the endpoint bus has gone away
// (bus.ErrEngineGone-shaped); a single device's read failure is logged
// and skipped, it does not abort the whole poll.
func (s *Source) poll(client beacon.Client, now time.Time) error {
	for _, device := range s.Disks {
		usage, err := disk.Usage(device)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("disk usage poll failed", "device", device, "err", err)
			}
			continue
		}
		metrics := []beacon.Metric{
			{Name: "used_bytes", Value: float64(usage.Used), Type: beacon.MetricGauge, Category: "disk", Tags: map[string]string{"device": device}, Timestamp: now},
			{Name: "free_bytes", Value: float64(usage.Free), Type: beacon.MetricGauge, Category: "disk", Tags: map[string]string{"device": device}, Timestamp: now},
			{Name: "total_bytes", Value: float64(usage.Total), Type: beacon.MetricGauge, Category: "disk", Tags: map[string]string{"device": device}, Timestamp: now},
			{Name: "used_percent", Value: usage.UsedPercent, Type: beacon.MetricGauge, Category: "disk", Tags: map[string]string{"device": device}, Timestamp: now},
		}
		if err := client.SendMetrics(metrics); err != nil {
			return err
		}
	}
	return nil
}
