package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricsFannedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_engine_metrics_fanned_out_total",
		Help: "The total number of metric events enqueued into a sink inbox",
	}, []string{"sink_id"})

	MetricsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_engine_metrics_dropped_total",
		Help: "The total number of metrics dropped by the transformer chain",
	}, []string{"category", "name"})

	SinksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_engine_sinks_reaped_total",
		Help: "The total number of sinks removed from the live set after their inbox closed",
	})

	ActiveEngines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_engine_active_total",
		Help: "The total number of currently running engines",
	})

	ShutdownTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_engine_shutdown_timeouts_total",
		Help: "The total number of sinks that did not exit within the shutdown timeout",
	}, []string{"sink_id"})

	// StackdriverSuccesses and StackdriverFailures stand in for
	// "stackdriver.metrics.successes"/"failures": Prometheus metric names
	// cannot contain dots, so these are the equivalent-name rendering the
	// dotted counters are required to have.
	StackdriverSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stackdriver_metrics_successes_total",
		Help: "The total number of successful CreateTimeSeries flushes",
	})

	StackdriverFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stackdriver_metrics_failures_total",
		Help: "The total number of CreateTimeSeries flushes that failed fatally",
	})
)
