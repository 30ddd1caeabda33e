package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the scheduler's sink of counters and timers. queued counts every
// task ever admitted (monotonic, distinct from the queue-length gauge); each
// dequeued task increments exactly one of completed/failed and at most one
// overdue.
type Metrics struct {
	queued     prometheus.Counter
	completed  prometheus.Counter
	failed     prometheus.Counter
	overdue    prometheus.Counter
	execTime   prometheus.Histogram
	queueLen   prometheus.Gauge
	deviceLoad *prometheus.GaugeVec
}

// NewMetrics registers the scheduler metric set on reg. Tests pass a fresh
// registry; the daemon passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "tasks_queued_total",
			Help:      "Tasks ever admitted to the queue",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "tasks_completed_total",
			Help:      "Tasks that finished execution successfully",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "tasks_failed_total",
			Help:      "Tasks whose load or execution failed",
		}),
		overdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "tasks_overdue_total",
			Help:      "Completed tasks that exceeded their declared max duration",
		}),
		execTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "task_execution_seconds",
			Help:      "Wall-clock task execution time from device selection to completion",
			Buckets:   prometheus.DefBuckets,
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "queue_length",
			Help:      "Tasks currently pending in the queue",
		}),
		deviceLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "omnitensor",
			Subsystem: "scheduler",
			Name:      "device_load",
			Help:      "In-flight work currently assigned per device",
		}, []string{"device"}),
	}
	reg.MustRegister(m.queued, m.completed, m.failed, m.overdue, m.execTime, m.queueLen, m.deviceLoad)
	return m
}

func (m *Metrics) TaskQueued(queueLen int) {
	m.queued.Inc()
	m.queueLen.Set(float64(queueLen))
}

func (m *Metrics) QueueLength(n int) { m.queueLen.Set(float64(n)) }

func (m *Metrics) DeviceAcquired(device string) { m.deviceLoad.WithLabelValues(device).Inc() }
func (m *Metrics) DeviceReleased(device string) { m.deviceLoad.WithLabelValues(device).Dec() }

func (m *Metrics) TaskCompleted(seconds float64, overdue bool) {
	m.execTime.Observe(seconds)
	m.completed.Inc()
	if overdue {
		m.overdue.Inc()
	}
}

func (m *Metrics) TaskFailed(seconds float64) {
	m.execTime.Observe(seconds)
	m.failed.Inc()
}

// TaskNotDispatched counts a task that failed before any execution began.
// No duration sample is recorded; the execution histogram covers only tasks
// that reached a device.
func (m *Metrics) TaskNotDispatched() { m.failed.Inc() }
