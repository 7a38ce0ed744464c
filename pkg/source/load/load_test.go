package load

import (
	"context"
	"testing"
	"time"

	"github.com/user/beacon"
)

type nopSender struct{}

func (nopSender) SendMetric(beacon.Origin, beacon.Metric) error     { return nil }
func (nopSender) SendMetrics(beacon.Origin, []beacon.Metric) error  { return nil }
func (nopSender) SendLog(beacon.Origin, beacon.Log) error           { return nil }
func (nopSender) SendLogWithMetadata(beacon.Origin, any, any) error { return nil }

func TestProduceReturnsOnContextCancel(t *testing.T) {
	s := New()
	client := beacon.NewClient(beacon.NewOrigin(beacon.OriginSource, "load"), nopSender{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Produce(ctx, client) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Produce: got %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Produce did not return after context cancel")
	}
}
