package queue

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the worker pool's prometheus instrumentation (queue depth /
// worker utilization / run outcome counters), grounded on the pack's
// (r3e-network-service_layer pkg/metrics) counter/gauge-per-concern style:
// a package-local registry so the queue package can be wired into any
// process's /metrics endpoint without a global singleton.
type Metrics struct {
	Registry        *prometheus.Registry
	QueueDepth      prometheus.Counter
	InlineFallbacks prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	RunsStarted     prometheus.Counter
	RunOutcomes     *prometheus.CounterVec
	JobDuration     prometheus.Histogram
}

// NewMetrics registers a fresh set of collectors on their own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		QueueDepth: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "enqueued_total",
			Help: "Total number of Jobs successfully enqueued.",
		}),
		InlineFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "inline_fallbacks_total",
			Help: "Total number of Runs executed inline because the queue was unreachable.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "active_workers",
			Help: "Number of worker goroutines currently executing a Job.",
		}),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "runs_started_total",
			Help: "Total number of Runs dispatched to the Flow Engine.",
		}),
		RunOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "run_outcomes_total",
			Help: "Total Run outcomes by terminal status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowtest", Subsystem: "queue", Name: "job_duration_seconds",
			Help:    "Wall-clock duration of one Job's end-to-end processing.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.QueueDepth, m.InlineFallbacks, m.ActiveWorkers, m.RunsStarted, m.RunOutcomes, m.JobDuration)
	return m
}
