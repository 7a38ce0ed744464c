package engine

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/user/beacon"
)

// DefaultLogger is a simple logger that uses zerolog for zero-allocation structured logging.
type DefaultLogger struct {
	logger zerolog.Logger
	// optional sampler to reduce log spam (e.g., Warn/Error)
	sampler zerolog.Sampler
	sampled zerolog.Logger
}

// NewDefaultLogger creates a DefaultLogger with stderr output and timestamps.
func NewDefaultLogger() *DefaultLogger {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	var samp zerolog.Sampler
	if v := os.Getenv("BEACON_LOG_SAMPLE_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			samp = zerolog.RandomSampler(n)
		}
	}
	var sampled zerolog.Logger
	if samp != nil {
		sampled = l.Sample(samp)
	}
	return &DefaultLogger{logger: l, sampler: samp, sampled: sampled}
}

func (l *DefaultLogger) log(event *zerolog.Event, msg string, keysAndValues ...interface{}) {
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			event.Interface(key, keysAndValues[i+1])
		} else {
			event.Interface(key, nil)
		}
	}
	event.Msg(msg)
}

// Debug logs a debug-level message with structured key/value pairs.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Debug(), msg, keysAndValues...)
}

// Info logs an info-level message with structured key/value pairs.
func (l *DefaultLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Info(), msg, keysAndValues...)
}

// Warn logs a warning-level message with structured key/value pairs.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...interface{}) {
	if l.sampler != nil {
		l.log(l.sampled.Warn(), msg, keysAndValues...)
		return
	}
	l.log(l.logger.Warn(), msg, keysAndValues...)
}

// Error logs an error-level message with structured key/value pairs.
func (l *DefaultLogger) Error(msg string, keysAndValues ...interface{}) {
	if l.sampler != nil {
		l.log(l.sampled.Error(), msg, keysAndValues...)
		return
	}
	l.log(l.logger.Error(), msg, keysAndValues...)
}

// WithOrigin returns a logger scoped to one pipeline participant: every line
// it emits carries the origin's instance id, so call sites no longer need
// to pass it as a key/value pair themselves. The sampler, if any, carries
// over unchanged.
func (l *DefaultLogger) WithOrigin(origin beacon.Origin) beacon.Logger {
	scoped := l.logger.With().Str("instance", origin.InstanceID()).Logger()
	child := &DefaultLogger{logger: scoped, sampler: l.sampler}
	if l.sampler != nil {
		child.sampled = scoped.Sample(l.sampler)
	}
	return child
}

// originScoped is implemented by loggers that can bind themselves to a
// pipeline participant; scopedLogger uses it when available and falls back
// to the bare logger otherwise.
type originScoped interface {
	WithOrigin(beacon.Origin) beacon.Logger
}

// scopedLogger derives an origin-scoped logger from logger when it supports
// WithOrigin, so every log line a source or sink task emits already carries
// its instance id in structured form.
func scopedLogger(logger beacon.Logger, origin beacon.Origin) beacon.Logger {
	if logger == nil {
		return nil
	}
	if o, ok := logger.(originScoped); ok {
		return o.WithOrigin(origin)
	}
	return logger
}
