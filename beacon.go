// Package beacon defines the core event model and the open interfaces that
// sources, sinks, and transformers implement to plug into the pipeline
// engine in package engine.
package beacon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MetricType distinguishes a point-in-time measurement from a running total.
type MetricType string

const (
	MetricGauge   MetricType = "gauge"
	MetricCounter MetricType = "counter"
)

// Origin identifies a pipeline participant — a source or a sink instance.
// Built once at registration and shared by reference thereafter; nothing
// mutates an Origin after construction.
type Origin struct {
	ID   uuid.UUID
	Name string
	Kind OriginKind
}

// OriginKind distinguishes the two shapes an instance id can take.
type OriginKind int

const (
	OriginSource OriginKind = iota
	OriginSink
)

// NewOrigin mints a fresh Origin for a newly registered source or sink.
func NewOrigin(kind OriginKind, name string) Origin {
	return Origin{ID: uuid.New(), Name: name, Kind: kind}
}

// InstanceID renders the origin's derived identifier, e.g. "source-disks:<id>".
func (o Origin) InstanceID() string {
	prefix := "source"
	if o.Kind == OriginSink {
		prefix = "sink"
	}
	return fmt.Sprintf("%s-%s:%s", prefix, o.Name, o.ID)
}

// Metric is a single measurement carried through the pipeline.
type Metric struct {
	Name      string
	Value     float64
	Type      MetricType
	Category  string
	Tags      map[string]string
	Timestamp time.Time
}

// Clone returns a copy of the metric with its own copy of the tag map; Metric itself is
// treated as immutable once handed to more than one sink, so any
// transformer that wants to alter tags must clone first.
func (m Metric) Clone() Metric {
	tags := make(map[string]string, len(m.Tags))
	for k, v := range m.Tags {
		tags[k] = v
	}
	m.Tags = tags
	return m
}

// Log is a structured record broadcast alongside metrics.
type Log struct {
	Inner    any
	Metadata any
}

// EventKind tags which field of Event is populated.
type EventKind int

const (
	EventMetric EventKind = iota
	EventLog
	EventTick
	EventShutdown
)

// Event is the pipeline-level tagged union: a metric, a log, an idle tick,
// or the terminal shutdown signal.
type Event struct {
	Kind   EventKind
	Metric Metric
	Log    Log
}

// PipelineMessage pairs an Event with the Origin that produced it. Sources
// create these via their Client; the engine destroys them after fan-out.
type PipelineMessage struct {
	Origin Origin
	Event  Event
}

// FramedKind tags which field of a FramedMessage is populated.
type FramedKind int

const (
	FramedMsg FramedKind = iota
	FramedTick
	FramedShutdown
)

// FramedMessage is the message form delivered to a sink's inbox: a payload,
// an idle tick, or the terminal shutdown. Shutdown is always the last
// message a sink ever sees.
type FramedMessage[T any] struct {
	Kind FramedKind
	Msg  T
}

// NewFramedMsg wraps a payload as a data message.
func NewFramedMsg[T any](v T) FramedMessage[T] {
	return FramedMessage[T]{Kind: FramedMsg, Msg: v}
}

// NewFramedTick builds a tick frame for type T.
func NewFramedTick[T any]() FramedMessage[T] {
	return FramedMessage[T]{Kind: FramedTick}
}

// NewFramedShutdown builds a shutdown frame for type T.
func NewFramedShutdown[T any]() FramedMessage[T] {
	return FramedMessage[T]{Kind: FramedShutdown}
}

// MetricEvent is the payload sinks receive: a metric paired with the
// Origin of the source that produced it.
type MetricEvent struct {
	Origin Origin
	Metric Metric
}

// MetricInbox is the channel type a MetricSink's Process method drains.
type MetricInbox = <-chan FramedMessage[MetricEvent]

// MetricFilter is a predicate over (origin, metric) gating a sink's
// participation in fan-out. Immutable once built.
type MetricFilter struct {
	match func(origin Origin, m Metric) bool
}

// IsHandled reports whether the filter admits the given origin/metric pair.
func (f MetricFilter) IsHandled(origin Origin, m Metric) bool {
	if f.match == nil {
		return true
	}
	return f.match(origin, m)
}

// MatchAll is the default filter: every metric is admitted.
func MatchAll() MetricFilter {
	return MetricFilter{}
}

// NewMetricFilter builds a filter from an arbitrary predicate.
func NewMetricFilter(fn func(origin Origin, m Metric) bool) MetricFilter {
	return MetricFilter{match: fn}
}

// FilterBySourceName builds a filter keyed only on the origin's name.
func FilterBySourceName(fn func(sourceName string) bool) MetricFilter {
	return NewMetricFilter(func(origin Origin, _ Metric) bool { return fn(origin.Name) })
}

// SourceNameEquals admits events whose origin name equals name exactly.
func SourceNameEquals(name string) MetricFilter {
	return FilterBySourceName(func(sourceName string) bool { return sourceName == name })
}

// SourceNameStartsWith admits events whose origin name has the given prefix.
func SourceNameStartsWith(prefix string) MetricFilter {
	return FilterBySourceName(func(sourceName string) bool {
		return len(sourceName) >= len(prefix) && sourceName[:len(prefix)] == prefix
	})
}

// SourceNameEndsWith admits events whose origin name has the given suffix.
func SourceNameEndsWith(suffix string) MetricFilter {
	return FilterBySourceName(func(sourceName string) bool {
		return len(sourceName) >= len(suffix) && sourceName[len(sourceName)-len(suffix):] == suffix
	})
}

// CategoryEquals admits events whose metric category equals category exactly.
func CategoryEquals(category string) MetricFilter {
	return NewMetricFilter(func(_ Origin, m Metric) bool { return m.Category == category })
}

// SourceConfig carries per-instance source tuning. Currently a placeholder,
// reserved for future per-kind options beyond what each source's own
// decoded config struct holds.
type SourceConfig struct{}

// TransformerConfig carries per-instance transformer tuning; currently a
// placeholder, mirroring SourceConfig.
type TransformerConfig struct{}

// SinkConfig carries per-instance sink tuning; today this is just the
// attached filter.
type SinkConfig struct {
	Filter MetricFilter
}

// DefaultSinkConfig returns a SinkConfig with a match-all filter.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{Filter: MatchAll()}
}

// Sender is the endpoint bus's producer-facing contract, implemented by
// package bus's EndpointBus. A Client binds a Sender to a fixed Origin.
type Sender interface {
	SendMetric(origin Origin, m Metric) error
	SendMetrics(origin Origin, ms []Metric) error
	SendLog(origin Origin, l Log) error
	SendLogWithMetadata(origin Origin, inner any, metadata any) error
}

// Client binds a Sender to a fixed origin so a source need only supply
// payloads, never repeat its own identity.
type Client struct {
	origin Origin
	sender Sender
}

// NewClient builds a Client for the given origin over the given sender.
func NewClient(origin Origin, sender Sender) Client {
	return Client{origin: origin, sender: sender}
}

// Origin returns the client's bound origin.
func (c Client) Origin() Origin { return c.origin }

// SendMetric enqueues one metric event under the client's origin.
func (c Client) SendMetric(m Metric) error {
	return c.sender.SendMetric(c.origin, m)
}

// SendMetrics enqueues each metric in order; on first failure it returns
// without rewinding already-enqueued items.
func (c Client) SendMetrics(ms []Metric) error {
	return c.sender.SendMetrics(c.origin, ms)
}

// SendLog enqueues a log event under the client's origin.
func (c Client) SendLog(l Log) error {
	return c.sender.SendLog(c.origin, l)
}

// Source is implemented by every registered source. Produce is expected to
// run until explicit shutdown or an unrecoverable error; it must not
// assume the engine drains its queue quickly.
type Source interface {
	Produce(ctx context.Context, client Client) error
}

// MetricSink is implemented by every registered sink. Process must loop
// over inbox until it observes FramedShutdown (or the channel closes).
type MetricSink interface {
	Process(ctx context.Context, origin Origin, inbox MetricInbox) error
	Filter() MetricFilter
}

// Transformer is a synchronous, non-blocking per-metric function that may
// mutate or drop a metric. Returning ok=false drops the metric from the
// pipeline.
type Transformer interface {
	Transform(origin Origin, m Metric) (Metric, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(origin Origin, m Metric) (Metric, bool)

func (f TransformerFunc) Transform(origin Origin, m Metric) (Metric, bool) { return f(origin, m) }

// Logger is the structured logging contract used throughout the pipeline.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Loggable is implemented by components willing to accept an injected
// Logger instead of constructing their own.
type Loggable interface {
	SetLogger(Logger)
}

// SourceDecl is a registered source: its origin, its (currently empty)
// config, and the concrete implementation.
type SourceDecl struct {
	Origin Origin
	Config SourceConfig
	Source Source
}

// SinkDecl is a registered sink: its origin, config (carrying the filter),
// and the concrete implementation.
type SinkDecl struct {
	Origin Origin
	Config SinkConfig
	Sink   MetricSink
}

// TransformerDecl is a registered transformer: its origin, config, and the
// concrete implementation.
type TransformerDecl struct {
	Origin      Origin
	Config      TransformerConfig
	Transformer Transformer
}

// Configuration accumulates declarations before the engine starts; it owns
// them until Engine.New consumes it.
type Configuration struct {
	Sources      []SourceDecl
	Sinks        []SinkDecl
	Transformers []TransformerDecl
}

// NewConfiguration returns an empty Configuration ready for registration.
func NewConfiguration() *Configuration {
	return &Configuration{}
}

// RegisterSource adds a source under the given name and returns the
// Configuration for chaining.
func (c *Configuration) RegisterSource(name string, src Source) *Configuration {
	c.Sources = append(c.Sources, SourceDecl{
		Origin: NewOrigin(OriginSource, name),
		Source: src,
	})
	return c
}

// RegisterSink adds a sink under the given name with the given config and
// returns the Configuration for chaining.
func (c *Configuration) RegisterSink(name string, cfg SinkConfig, sink MetricSink) *Configuration {
	c.Sinks = append(c.Sinks, SinkDecl{
		Origin: NewOrigin(OriginSink, name),
		Config: cfg,
		Sink:   sink,
	})
	return c
}

// RegisterTransformer appends a transformer to the chain and returns the
// Configuration for chaining. Order of registration is the order of
// execution.
func (c *Configuration) RegisterTransformer(name string, t Transformer) *Configuration {
	c.Transformers = append(c.Transformers, TransformerDecl{
		Origin:      NewOrigin(OriginSource, name),
		Transformer: t,
	})
	return c
}
