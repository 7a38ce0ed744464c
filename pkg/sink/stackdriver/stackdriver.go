// Package stackdriver implements the remote batching sink: it converts
// metric events into Google Cloud Monitoring time series, buffers them by
// key with upsert-by-key deduplication, and flushes on a size or period
// trigger via the authenticated CreateTimeSeries RPC, retrying transient
// failures.
package stackdriver

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/user/beacon"
	"github.com/user/beacon/pkg/engine"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// startTimeWindow is the backend-imposed limit on how stale a cumulative
// metric's start time may be before it must be reset.
const startTimeWindow = 25 * time.Hour

// retryBackoff is the fixed sleep between retry attempts and between
// size-triggered-flush polls.
const retryBackoff = 500 * time.Millisecond

// Resource mirrors the GCP MonitoredResource wire shape used both for the
// default resource and per-category mappings.
type Resource struct {
	Type   string
	Labels map[string]string
}

func (r Resource) toProto() *monitoredres.MonitoredResource {
	return &monitoredres.MonitoredResource{Type: r.Type, Labels: r.Labels}
}

// Config carries the remote batching sink's settings, keyed from the
// `[sinks.stackdriver_metrics]` table.
type Config struct {
	ProjectID        string
	CredentialsPath  string
	BatchSize        int
	Period           time.Duration
	Retries          int
	DefaultResource  Resource
	ResourceMappings map[string]Resource
}

// DefaultConfig returns a Config with the spec's documented defaults.
func DefaultConfig(projectID string) Config {
	return Config{
		ProjectID: projectID,
		BatchSize: 200,
		Period:    10 * time.Second,
		Retries:   3,
	}
}

// cachedDate pairs a monotonic clock anchor with the wall-clock instant it
// was taken at, so elapsed() can be measured without resetting time.
type cachedDate struct {
	at    time.Time
	clock time.Time
}

func newCachedDate() cachedDate {
	now := time.Now()
	return cachedDate{at: now, clock: now}
}

func (c cachedDate) elapsed() time.Duration {
	return time.Since(c.clock)
}

func (c cachedDate) reset() cachedDate {
	return newCachedDate()
}

func (c cachedDate) time() time.Time {
	return c.at
}

// metricWriter is the subset of *monitoring.MetricClient that flush needs.
// It exists so tests can drive flush's batch/retry behavior through
// Process() against a fake, since the real client has no public
// constructor seam of its own.
type metricWriter interface {
	CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest, opts ...gax.CallOption) error
}

// Sink is the StackDriver-shaped remote batching sink.
type Sink struct {
	cfg    Config
	logger beacon.Logger
	filter beacon.MetricFilter

	client metricWriter
}

// New constructs a Sink bound to cfg. The authenticated transport is built
// lazily in Process, since startup failure there is a fatal per-sink error
// rather than a package-level one.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg, filter: beacon.MatchAll()}
}

// NewWithFilter constructs a Sink whose Filter method reports f. The engine
// gates fan-out on the SinkConfig filter given at registration, not on this
// one.
func NewWithFilter(cfg Config, f beacon.MetricFilter) *Sink {
	return &Sink{cfg: cfg, filter: f}
}

// newForTest constructs a Sink with its metricWriter already set, bypassing
// Process's normal lazy construction of the authenticated transport. Used
// only by tests that drive Process end-to-end against a fake writer.
func newForTest(cfg Config, client metricWriter) *Sink {
	return &Sink{cfg: cfg, filter: beacon.MatchAll(), client: client}
}

// SetLogger wires an optional structured logger.
func (s *Sink) SetLogger(l beacon.Logger) { s.logger = l }

// Filter returns the sink's attached filter.
func (s *Sink) Filter() beacon.MetricFilter { return s.filter }

// Process constructs the authenticated transport, then drains inbox until
// Shutdown, buffering and flushing per the spec's tick/size triggers. If a
// metricWriter was already injected (newForTest), the real transport is
// never constructed — this is the seam tests use to drive flush's
// batch/retry behavior without reaching the network.
func (s *Sink) Process(ctx context.Context, origin beacon.Origin, inbox beacon.MetricInbox) error {
	if s.client == nil {
		opts := []option.ClientOption{}
		if s.cfg.CredentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(s.cfg.CredentialsPath))
		}
		client, err := monitoring.NewMetricClient(ctx, opts...)
		if err != nil {
			return fmt.Errorf("stackdriver: construct metric client: %w", err)
		}
		s.client = client
		defer client.Close()
	}

	buf := newBuffer()
	clock := newCachedDate()
	started := newCachedDate()

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
				if !buf.empty() && clock.elapsed() >= s.cfg.Period {
					clock = s.flush(ctx, origin, &buf, clock)
				}
			case beacon.FramedMsg:
				if started.elapsed() >= startTimeWindow {
					started = started.reset()
				}
				ts := s.buildTimeSeries(frame.Msg.Metric, started)
				key := metricTypeKey(frame.Msg.Metric)
				buf.upsert(key, ts)

				if buf.len() == s.cfg.BatchSize {
					for clock.elapsed() < s.cfg.Period {
						select {
						case <-time.After(retryBackoff):
						case <-ctx.Done():
							return ctx.Err()
						}
					}
					clock = s.flush(ctx, origin, &buf, clock)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func metricTypeKey(m beacon.Metric) string {
	return fmt.Sprintf("custom.googleapis.com/%s/metrics/%s", m.Category, m.Name)
}

func (s *Sink) resourceFor(category string) Resource {
	if r, ok := s.cfg.ResourceMappings[category]; ok {
		return r
	}
	return s.cfg.DefaultResource
}

func (s *Sink) buildTimeSeries(m beacon.Metric, started cachedDate) *monitoringpb.TimeSeries {
	kind := metric.MetricDescriptor_GAUGE
	startTime := m.Timestamp
	if m.Type == beacon.MetricCounter {
		kind = metric.MetricDescriptor_CUMULATIVE
		startTime = started.time()
	}

	point := &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime:   toTimestamp(m.Timestamp),
			StartTime: toTimestamp(startTime),
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_Int64Value{Int64Value: int64(m.Value)},
		},
	}

	return &monitoringpb.TimeSeries{
		Metric: &metric.Metric{
			Type:   metricTypeKey(m),
			Labels: m.Tags,
		},
		Resource:   s.resourceFor(m.Category).toProto(),
		MetricKind: kind,
		ValueType:  metric.MetricDescriptor_INT64,
		Unit:       "INT64",
		Points:     []*monitoringpb.Point{point},
	}
}

// flush drains the buffer and attempts delivery with retry-on-transient
// semantics, returning the reset clock regardless of outcome.
func (s *Sink) flush(ctx context.Context, origin beacon.Origin, buf *buffer, clock cachedDate) cachedDate {
	series := buf.drain()
	if len(series) == 0 {
		return clock.reset()
	}

	req := &monitoringpb.CreateTimeSeriesRequest{
		Name:       fmt.Sprintf("projects/%s", s.cfg.ProjectID),
		TimeSeries: series,
	}

	retries := s.cfg.Retries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 1; attempt <= retries; attempt++ {
		err := s.client.CreateTimeSeries(ctx, req)
		if err == nil {
			engine.StackdriverSuccesses.Inc()
			break
		}
		if isTransient(err) && attempt < retries {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return clock.reset()
			}
			continue
		}
		if s.logger != nil {
			s.logger.Error("stackdriver flush failed", "sink", origin.InstanceID(), "err", err)
		}
		engine.StackdriverFailures.Inc()
		break
	}

	return clock.reset()
}

func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Internal || st.Code() == codes.Unknown
}

func toTimestamp(t time.Time) *timestamppb.Timestamp {
	return timestamppb.New(t)
}
