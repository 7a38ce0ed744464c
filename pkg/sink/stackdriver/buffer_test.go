package stackdriver

import (
	"testing"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
)

func TestBufferUpsertDedupesByKey(t *testing.T) {
	b := newBuffer()
	first := &monitoringpb.TimeSeries{}
	second := &monitoringpb.TimeSeries{}

	b.upsert("disk/used_bytes", first)
	b.upsert("disk/used_bytes", second)
	b.upsert("disk/free_bytes", first)

	if b.len() != 2 {
		t.Fatalf("len: got %d, want 2", b.len())
	}

	out := b.drain()
	if len(out) != 2 {
		t.Fatalf("drain: got %d entries, want 2", len(out))
	}
	if out[0] != second {
		t.Errorf("drain: expected the later upsert to win for the first key")
	}
}

func TestBufferDrainEmptiesBuffer(t *testing.T) {
	b := newBuffer()
	b.upsert("k", &monitoringpb.TimeSeries{})

	_ = b.drain()

	if !b.empty() {
		t.Errorf("empty: expected true after drain")
	}
	if b.len() != 0 {
		t.Errorf("len: got %d, want 0 after drain", b.len())
	}
}

func TestBufferPreservesInsertionOrder(t *testing.T) {
	b := newBuffer()
	a := &monitoringpb.TimeSeries{}
	c := &monitoringpb.TimeSeries{}
	d := &monitoringpb.TimeSeries{}

	b.upsert("a", a)
	b.upsert("c", c)
	b.upsert("d", d)

	out := b.drain()
	if len(out) != 3 || out[0] != a || out[1] != c || out[2] != d {
		t.Errorf("drain: order not preserved, got %+v", out)
	}
}
