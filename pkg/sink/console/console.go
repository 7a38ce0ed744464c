// Package console implements the reference minimal sink: it prints every
// metric it receives as a single line and ignores everything else.
package console

import (
	"context"
	"fmt"

	"github.com/user/beacon"
)

// Sink drains its inbox and prints one line per metric. It is the
// reference sink used in examples and tests.
type Sink struct {
	logger beacon.Logger
	filter beacon.MetricFilter
}

// New returns a console Sink with a match-all filter.
func New() *Sink {
	return &Sink{filter: beacon.MatchAll()}
}

// NewWithFilter returns a console Sink whose Filter method reports f. The
// engine gates fan-out on the SinkConfig filter given at registration, not
// on this one.
func NewWithFilter(f beacon.MetricFilter) *Sink {
	return &Sink{filter: f}
}

// SetLogger wires an optional structured logger, echoed alongside stdout.
func (s *Sink) SetLogger(l beacon.Logger) {
	s.logger = l
}

// Filter returns the sink's attached filter.
func (s *Sink) Filter() beacon.MetricFilter {
	return s.filter
}

// Process loops over inbox until Shutdown (or the channel closes),
// printing one line per Msg frame and ignoring Tick.
func (s *Sink) Process(ctx context.Context, origin beacon.Origin, inbox beacon.MetricInbox) error {
	for {
		select {
		case frame, ok := <-inbox:
			if !ok {
				return nil
			}
			switch frame.Kind {
			case beacon.FramedShutdown:
				return nil
			case beacon.FramedTick:
				// A console sink has no time-based buffer to flush.
			case beacon.FramedMsg:
				s.print(origin, frame.Msg)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sink) print(sinkOrigin beacon.Origin, ev beacon.MetricEvent) {
	line := fmt.Sprintf("[%s] %s: %s=%v type=%s category=%q tags=%v",
		sinkOrigin.InstanceID(), ev.Origin.Name, ev.Metric.Name, ev.Metric.Value,
		ev.Metric.Type, ev.Metric.Category, ev.Metric.Tags)
	fmt.Println(line)
	if s.logger != nil {
		s.logger.Info(line)
	}
}
