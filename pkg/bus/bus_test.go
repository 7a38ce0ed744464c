package bus

import (
	"context"
	"testing"
	"time"

	"github.com/user/beacon"
)

func TestSendMetricThenRecv(t *testing.T) {
	b := New()
	origin := beacon.NewOrigin(beacon.OriginSource, "disks")
	m := beacon.Metric{Name: "used_bytes", Value: 1}

	if err := b.SendMetric(origin, m); err != nil {
		t.Fatalf("SendMetric: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.Recv(ctx)
	if !ok {
		t.Fatalf("Recv: expected a message")
	}
	if msg.Event.Kind != beacon.EventMetric || msg.Event.Metric.Name != "used_bytes" {
		t.Errorf("Recv: got %+v", msg)
	}
}

func TestRecvPreservesOrder(t *testing.T) {
	b := New()
	origin := beacon.NewOrigin(beacon.OriginSource, "disks")

	for i := 0; i < 3; i++ {
		if err := b.SendMetric(origin, beacon.Metric{Name: "m", Value: float64(i)}); err != nil {
			t.Fatalf("SendMetric: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		msg, ok := b.Recv(ctx)
		if !ok {
			t.Fatalf("Recv %d: expected a message", i)
		}
		if msg.Event.Metric.Value != float64(i) {
			t.Errorf("Recv %d: got value %v, want %v", i, msg.Event.Metric.Value, i)
		}
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	b := New()
	b.Close()

	origin := beacon.NewOrigin(beacon.OriginSource, "disks")
	if err := b.SendMetric(origin, beacon.Metric{}); err != ErrEngineGone {
		t.Errorf("SendMetric after close: got %v, want ErrEngineGone", err)
	}
}

func TestRecvDrainsThenClosed(t *testing.T) {
	b := New()
	origin := beacon.NewOrigin(beacon.OriginSource, "disks")
	if err := b.SendMetric(origin, beacon.Metric{Name: "last"}); err != nil {
		t.Fatalf("SendMetric: %v", err)
	}
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.Recv(ctx)
	if !ok {
		t.Fatalf("Recv: expected the queued message before reporting closed")
	}
	if msg.Event.Metric.Name != "last" {
		t.Errorf("Recv: got %+v", msg)
	}

	if _, ok := b.Recv(ctx); ok {
		t.Errorf("Recv: expected false once drained and closed")
	}
}

func TestRecvUnblocksOnContextCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := b.Recv(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Errorf("Recv: expected false on context cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv did not return after context cancellation")
	}
}
