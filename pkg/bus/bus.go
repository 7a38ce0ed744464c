// Package bus implements the endpoint bus: the unbounded many-producer,
// single-consumer queue that carries PipelineMessages from every source
// task to the engine loop.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/user/beacon"
)

// ErrEngineGone is returned to a producer once the engine has stopped
// reading from the bus (Close has been called).
var ErrEngineGone = errors.New("bus: engine gone")

// EndpointBus is an unbounded MPSC queue. It is unbounded because sources
// are trusted and self-paced; backpressure is expressed downstream, at
// each sink's bounded inbox, not here.
type EndpointBus struct {
	mu     sync.Mutex
	queue  []beacon.PipelineMessage
	notify chan struct{}
	closed bool
}

// New returns an empty, open EndpointBus.
func New() *EndpointBus {
	return &EndpointBus{notify: make(chan struct{}, 1)}
}

func (b *EndpointBus) push(msg beacon.PipelineMessage) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEngineGone
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendMetric enqueues one metric event.
func (b *EndpointBus) SendMetric(origin beacon.Origin, m beacon.Metric) error {
	return b.push(beacon.PipelineMessage{
		Origin: origin,
		Event:  beacon.Event{Kind: beacon.EventMetric, Metric: m},
	})
}

// SendMetrics enqueues each metric in order; on first failure it returns
// without rewinding already-enqueued items.
func (b *EndpointBus) SendMetrics(origin beacon.Origin, ms []beacon.Metric) error {
	for _, m := range ms {
		if err := b.SendMetric(origin, m); err != nil {
			return err
		}
	}
	return nil
}

// SendLog enqueues a log event.
func (b *EndpointBus) SendLog(origin beacon.Origin, l beacon.Log) error {
	return b.push(beacon.PipelineMessage{
		Origin: origin,
		Event:  beacon.Event{Kind: beacon.EventLog, Log: l},
	})
}

// SendLogWithMetadata marshals inner/metadata to the internal JSON-like
// value form before enqueuing; failure to marshal is reported as-is.
func (b *EndpointBus) SendLogWithMetadata(origin beacon.Origin, inner any, metadata any) error {
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		return err
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	var innerVal, metaVal any
	if err := json.Unmarshal(innerBytes, &innerVal); err != nil {
		return err
	}
	if err := json.Unmarshal(metaBytes, &metaVal); err != nil {
		return err
	}
	return b.SendLog(origin, beacon.Log{Inner: innerVal, Metadata: metaVal})
}

// SendShutdown enqueues the terminal shutdown event. The bus stays open:
// producers can still enqueue after it, and only Close stops them.
func (b *EndpointBus) SendShutdown() error {
	return b.push(beacon.PipelineMessage{Event: beacon.Event{Kind: beacon.EventShutdown}})
}

// Recv blocks until a message is available, the bus is closed, or ctx is
// done. ok is false when the bus has been closed and drained, or when ctx
// is done.
func (b *EndpointBus) Recv(ctx context.Context) (msg beacon.PipelineMessage, ok bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			msg = b.queue[0]
			b.queue[0] = beacon.PipelineMessage{}
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return msg, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return beacon.PipelineMessage{}, false
		}

		select {
		case <-ctx.Done():
			return beacon.PipelineMessage{}, false
		case <-b.notify:
		}
	}
}

// Close marks the bus closed; subsequent Send* calls return ErrEngineGone.
// Messages already queued remain available to Recv until drained.
func (b *EndpointBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
