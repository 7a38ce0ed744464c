package stackdriver

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/user/beacon"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeWriter stands in for *monitoring.MetricClient: it counts every
// CreateTimeSeries call in attempts and records the series of each
// successful one in calls, so Process()'s batch/retry behavior can
// be driven end-to-end without reaching the network. failUntilAttempt, when
// nonzero, makes the first N-1 attempts return a transient gRPC error
// before succeeding.
type fakeWriter struct {
	mu               sync.Mutex
	calls            [][]*monitoringpb.TimeSeries
	attempts         int
	failUntilAttempt int
	err              error
}

func (f *fakeWriter) CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest, opts ...gax.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failUntilAttempt != 0 && f.attempts < f.failUntilAttempt {
		return status.Error(codes.Internal, "transient")
	}
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, req.TimeSeries)
	return nil
}

func (f *fakeWriter) snapshot() [][]*monitoringpb.TimeSeries {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*monitoringpb.TimeSeries, len(f.calls))
	copy(out, f.calls)
	return out
}

func metricEvent(origin beacon.Origin, category, name string, value float64) beacon.MetricEvent {
	return beacon.MetricEvent{
		Origin: origin,
		Metric: beacon.Metric{
			Name: name, Category: category, Value: value,
			Type: beacon.MetricGauge, Timestamp: time.Now(),
		},
	}
}

func runProcess(t *testing.T, s *Sink, inbox chan beacon.FramedMessage[beacon.MetricEvent]) chan error {
	t.Helper()
	origin := beacon.NewOrigin(beacon.OriginSink, "stackdriver")
	done := make(chan error, 1)
	go func() { done <- s.Process(context.Background(), origin, inbox) }()
	return done
}

func TestProcessFlushesOnBatchSize(t *testing.T) {
	fw := &fakeWriter{}
	cfg := DefaultConfig("proj")
	cfg.BatchSize = 2
	cfg.Period = 0
	cfg.DefaultResource = Resource{Type: "global"}
	s := newForTest(cfg, fw)

	inbox := make(chan beacon.FramedMessage[beacon.MetricEvent], 4)
	origin := beacon.NewOrigin(beacon.OriginSource, "disks")
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "disk", "used_bytes", 1))
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "disk", "free_bytes", 2))
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "disk", "total_bytes", 3))
	inbox <- beacon.NewFramedShutdown[beacon.MetricEvent]()

	done := runProcess(t, s, inbox)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Process did not return")
	}

	calls := fw.snapshot()
	if len(calls) != 1 {
		t.Fatalf("CreateTimeSeries: got %d calls, want 1", len(calls))
	}
	if len(calls[0]) != 2 {
		t.Fatalf("CreateTimeSeries: got %d series in the flush, want 2", len(calls[0]))
	}
	// The third metric arrived after the size-triggered flush drained the
	// buffer; with no flush-on-shutdown, it is never sent.
}

func TestProcessDedupsByKeyOnForcedFlush(t *testing.T) {
	fw := &fakeWriter{}
	cfg := DefaultConfig("proj")
	cfg.BatchSize = 10
	cfg.Period = 0
	cfg.DefaultResource = Resource{Type: "global"}
	s := newForTest(cfg, fw)

	inbox := make(chan beacon.FramedMessage[beacon.MetricEvent], 4)
	origin := beacon.NewOrigin(beacon.OriginSource, "http")
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "http", "requests", 1))
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "http", "requests", 2))
	inbox <- beacon.NewFramedTick[beacon.MetricEvent]()
	inbox <- beacon.NewFramedShutdown[beacon.MetricEvent]()

	done := runProcess(t, s, inbox)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Process did not return")
	}

	calls := fw.snapshot()
	if len(calls) != 1 {
		t.Fatalf("CreateTimeSeries: got %d calls, want 1", len(calls))
	}
	if len(calls[0]) != 1 {
		t.Fatalf("CreateTimeSeries: got %d series, want 1 (deduped by key)", len(calls[0]))
	}
	got := calls[0][0].Points[0].Value.GetInt64Value()
	if got != 2 {
		t.Errorf("CreateTimeSeries: got value %d, want 2 (the later sample)", got)
	}
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	fw := &fakeWriter{failUntilAttempt: 3} // fails attempts 1 and 2, succeeds on 3
	cfg := DefaultConfig("proj")
	cfg.BatchSize = 1
	cfg.Period = 0
	cfg.Retries = 3
	cfg.DefaultResource = Resource{Type: "global"}
	s := newForTest(cfg, fw)

	inbox := make(chan beacon.FramedMessage[beacon.MetricEvent], 2)
	origin := beacon.NewOrigin(beacon.OriginSource, "disks")
	inbox <- beacon.NewFramedMsg(metricEvent(origin, "disk", "used_bytes", 1))
	inbox <- beacon.NewFramedShutdown[beacon.MetricEvent]()

	done := runProcess(t, s, inbox)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Process did not return")
	}

	fw.mu.Lock()
	attempts := fw.attempts
	fw.mu.Unlock()
	if attempts != 3 {
		t.Errorf("CreateTimeSeries: got %d attempts, want 3 (2 transient failures then success)", attempts)
	}
	if len(fw.snapshot()) != 1 {
		t.Fatalf("CreateTimeSeries: got %d successful flushes recorded, want 1", len(fw.snapshot()))
	}
}
