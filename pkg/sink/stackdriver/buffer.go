package stackdriver

import "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"

// buffer is the upsert-by-key store the remote sink accumulates into
// between flushes: inserting under a key already present replaces the
// prior entry, so only the most recent sample for a given (category, name)
// survives to the next flush.
type buffer struct {
	order []string
	byKey map[string]*monitoringpb.TimeSeries
}

func newBuffer() buffer {
	return buffer{byKey: make(map[string]*monitoringpb.TimeSeries)}
}

func (b *buffer) upsert(key string, ts *monitoringpb.TimeSeries) {
	if _, exists := b.byKey[key]; !exists {
		b.order = append(b.order, key)
	}
	b.byKey[key] = ts
}

func (b *buffer) len() int {
	return len(b.byKey)
}

func (b *buffer) empty() bool {
	return len(b.byKey) == 0
}

// drain returns the buffered series in insertion order and empties the
// buffer.
func (b *buffer) drain() []*monitoringpb.TimeSeries {
	out := make([]*monitoringpb.TimeSeries, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.byKey[key])
	}
	b.order = nil
	b.byKey = make(map[string]*monitoringpb.TimeSeries)
	return out
}
