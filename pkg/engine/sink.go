package engine

import (
	"context"
	"time"

	"github.com/user/beacon"
)

// sinkTickInterval is the cadence at which a sink's tick generator emits
// FramedTick into its inbox. Unconfigurable by design (spec open question):
// a future version may expose it per-sink.
const sinkTickInterval = 30 * time.Millisecond

// sinkShutdownTimeout bounds how long the engine waits for a sink's driver
// task to exit after Shutdown is enqueued.
const sinkShutdownTimeout = 10 * time.Second

// sinkInboxCapacity is the bounded inbox size between the engine and each
// sink; this is the backpressure point described in the concurrency model.
const sinkInboxCapacity = 500

// sinkHandle is the engine's live handle on one running sink: its origin,
// filter, inbox, and the machinery to drive and shut it down.
type sinkHandle struct {
	origin beacon.Origin
	filter beacon.MetricFilter

	inbox  chan beacon.FramedMessage[beacon.MetricEvent]
	done   chan struct{} // closed when the driver task returns
	tickFn context.CancelFunc
}

// spawnSink starts a sink's driver task and its independent tick generator,
// returning the handle the engine retains for fan-out and shutdown.
func spawnSink(ctx context.Context, decl beacon.SinkDecl, logger beacon.Logger) *sinkHandle {
	inbox := make(chan beacon.FramedMessage[beacon.MetricEvent], sinkInboxCapacity)
	done := make(chan struct{})
	tickCtx, cancelTick := context.WithCancel(ctx)

	h := &sinkHandle{
		origin: decl.Origin,
		filter: decl.Config.Filter,
		inbox:  inbox,
		done:   done,
		tickFn: cancelTick,
	}

	scoped := scopedLogger(logger, decl.Origin)
	if setter, ok := decl.Sink.(beacon.Loggable); ok && scoped != nil {
		setter.SetLogger(scoped)
	}

	go func() {
		defer close(done)
		if err := decl.Sink.Process(ctx, decl.Origin, inbox); err != nil {
			if scoped != nil {
				scoped.Error("sink exited with error", "err", err)
			}
			return
		}
		if scoped != nil {
			scoped.Debug("sink exited cleanly")
		}
	}()

	go func() {
		ticker := time.NewTicker(sinkTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				select {
				case inbox <- beacon.NewFramedTick[beacon.MetricEvent]():
				case <-tickCtx.Done():
					return
				default:
					// Inbox full; drop this tick rather than block the
					// engine's own enqueue attempts.
				}
			}
		}
	}()

	return h
}

// isHandled applies the sink's filter without touching the inbox.
func (h *sinkHandle) isHandled(origin beacon.Origin, m beacon.Metric) bool {
	return h.filter.IsHandled(origin, m)
}

// sendMetric enqueues a Msg frame; this is the throttling point — a slow
// sink's full inbox blocks the caller (the engine loop). ok is false if the
// sink's driver has already exited.
func (h *sinkHandle) sendMetric(ctx context.Context, ev beacon.MetricEvent) (ok bool) {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- beacon.NewFramedMsg(ev):
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// shutdown enqueues Shutdown and awaits the driver task's exit, the two
// bounded by a single shared sinkShutdownTimeout deadline rather than one
// timeout per phase — an inbox-full enqueue and a stuck driver must not add
// up to double the budget.
func (h *sinkHandle) shutdown(logger beacon.Logger) {
	h.tickFn()
	deadline := time.Now().Add(sinkShutdownTimeout)

	select {
	case h.inbox <- beacon.NewFramedShutdown[beacon.MetricEvent]():
	case <-h.done:
		return
	case <-time.After(time.Until(deadline)):
	}

	select {
	case <-h.done:
	case <-time.After(time.Until(deadline)):
		ShutdownTimeouts.WithLabelValues(h.origin.InstanceID()).Inc()
		if logger != nil {
			logger.Warn("sink did not exit within shutdown timeout", "sink", h.origin.InstanceID())
		}
	}
}
