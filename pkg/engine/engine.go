// Package engine implements the pipeline engine: it drains the endpoint
// bus, runs each surviving metric through the transformer chain, fans out
// to every eligible sink, and reaps sinks whose driver task has exited.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/user/beacon"
	"github.com/user/beacon/pkg/bus"
	"github.com/user/beacon/pkg/transformer"
)

// ErrUnexpectedTermination is returned by Run when the endpoint bus closed
// (every source exited) without the engine ever seeing an explicit
// Shutdown event. The design assumes shutdown is always requested
// explicitly; bus closure alone is treated as an anomaly worth a
// distinguishable return value, not just a log line.
var ErrUnexpectedTermination = errors.New("engine: bus closed without shutdown")

// Engine owns the receiving end of the endpoint bus, the ordered
// transformer chain, and the set of live sink handles.
type Engine struct {
	bus    *bus.EndpointBus
	chain  *transformer.Chain
	logger beacon.Logger

	sourceDecls []beacon.SourceDecl
	sinkDecls   []beacon.SinkDecl
}

// New builds an Engine from a fully-populated Configuration. The
// Configuration is consumed: its declarations become the engine's own
// source/sink/transformer set.
func New(cfg *beacon.Configuration, logger beacon.Logger) *Engine {
	ts := make([]beacon.Transformer, 0, len(cfg.Transformers))
	for _, d := range cfg.Transformers {
		ts = append(ts, d.Transformer)
	}
	return &Engine{
		bus:         bus.New(),
		chain:       transformer.NewChain(ts...),
		logger:      logger,
		sourceDecls: cfg.Sources,
		sinkDecls:   cfg.Sinks,
	}
}

// Shutdown requests a clean stop: it enqueues the terminal Shutdown event
// onto the endpoint bus so the running Run loop observes it on its next
// iteration.
func (e *Engine) Shutdown() error {
	return e.bus.SendShutdown()
}

// Run spawns every source and sink, then drives the main loop until
// Shutdown is observed or ctx is cancelled. It returns nil on clean
// shutdown and ErrUnexpectedTermination if every source exited before a
// Shutdown event arrived.
func (e *Engine) Run(ctx context.Context) error {
	ActiveEngines.Inc()
	defer ActiveEngines.Dec()

	sinks := make(map[string]*sinkHandle, len(e.sinkDecls))
	order := make([]string, 0, len(e.sinkDecls))
	for _, decl := range e.sinkDecls {
		h := spawnSink(ctx, decl, e.logger)
		id := decl.Origin.ID.String()
		sinks[id] = h
		order = append(order, id)
	}

	var wg sync.WaitGroup
	for _, decl := range e.sourceDecls {
		spawnSource(ctx, &wg, decl, e.bus, e.logger)
	}
	go func() {
		wg.Wait()
		e.bus.Close()
	}()

	for {
		msg, ok := e.bus.Recv(ctx)
		if !ok {
			if ctx.Err() != nil {
				e.shutdownAll(sinks, order)
				return ctx.Err()
			}
			if e.logger != nil {
				e.logger.Warn("main process exited unexpectedly: endpoint bus closed without shutdown")
			}
			return ErrUnexpectedTermination
		}

		switch msg.Event.Kind {
		case beacon.EventMetric:
			e.handleMetric(ctx, msg.Origin, msg.Event.Metric, sinks, order)
		case beacon.EventLog:
			// Sinks in this pipeline speak the MetricSink contract only;
			// logs are accepted onto the bus (§3) but have no sink fan-out
			// path defined at this layer — symmetric handling is left to
			// a future log-aware sink kind.
		case beacon.EventTick:
			// No-op at engine level; each sink's tick is generated by its
			// own independent tick task (see sink.go).
		case beacon.EventShutdown:
			e.shutdownAll(sinks, order)
			return nil
		}
	}
}

func (e *Engine) handleMetric(ctx context.Context, origin beacon.Origin, m beacon.Metric, sinks map[string]*sinkHandle, order []string) {
	out, ok := e.chain.Apply(origin, m)
	if !ok {
		MetricsDropped.WithLabelValues(m.Category, m.Name).Inc()
		if e.logger != nil {
			e.logger.Warn("metric dropped by transformer chain", "category", m.Category, "name", m.Name)
		}
		return
	}

	ev := beacon.MetricEvent{Origin: origin, Metric: out}
	var dead []string
	for _, id := range order {
		h, live := sinks[id]
		if !live {
			continue
		}
		if !h.isHandled(origin, out) {
			continue
		}
		if h.sendMetric(ctx, ev) {
			MetricsFannedOut.WithLabelValues(h.origin.InstanceID()).Inc()
		} else {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(sinks, id)
		SinksReaped.Inc()
	}
}

func (e *Engine) shutdownAll(sinks map[string]*sinkHandle, order []string) {
	for _, id := range order {
		h, live := sinks[id]
		if !live {
			continue
		}
		h.shutdown(e.logger)
	}
}
