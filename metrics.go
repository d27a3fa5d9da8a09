package scheduler

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the scheduler and its pools
// update, named for a stable monitoring surface; labels are lane and
// priority names so the same collector serves every lane or priority
// without per-lane registration.
type Metrics struct {
	submittedTotal *prometheus.CounterVec
	dequeuedTotal  *prometheus.CounterVec
	doneTotal      *prometheus.CounterVec
	queueLength    *prometheus.GaugeVec

	queueTimeViolations prometheus.Counter
	ongoingLowPriority  prometheus.Gauge
	// ongoingLowPriorityCount mirrors ongoingLowPriority's value in a form
	// the scheduler can read synchronously (a prometheus.Gauge has no
	// public read accessor) to enforce Config.OngoingLowPriorityLimit.
	ongoingLowPriorityCount atomic.Int64
	lastLowPriorityMillis   prometheus.Gauge
	threadsStarted        prometheus.Counter
	threadsStopped        prometheus.Counter
	queueFullTotal        *prometheus.CounterVec
	workerPanicsTotal     prometheus.Counter
	stealsTotal           prometheus.Counter
	stealAttemptsTotal    prometheus.Counter

	mutexWaiting *prometheus.GaugeVec
	mutexHeld    *prometheus.GaugeVec
}

// beginLowPriorityTask records one more low-priority task starting
// execution, keeping the Prometheus gauge and the atomic read-path in
// sync.
func (m *Metrics) beginLowPriorityTask() {
	m.ongoingLowPriority.Inc()
	m.ongoingLowPriorityCount.Add(1)
}

// endLowPriorityTask is beginLowPriorityTask's counterpart, called when
// the task returns.
func (m *Metrics) endLowPriorityTask() {
	m.ongoingLowPriority.Dec()
	m.ongoingLowPriorityCount.Add(-1)
}

// NewMetrics registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions between
// independently-constructed schedulers in the same process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_submitted_total",
			Help: "Total number of tasks submitted, by lane and priority.",
		}, []string{"lane", "priority"}),
		dequeuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_dequeued_total",
			Help: "Total number of tasks dequeued by a worker, by lane and priority.",
		}, []string{"lane", "priority"}),
		doneTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_done_total",
			Help: "Total number of tasks that finished invocation, by lane and priority.",
		}, []string{"lane", "priority"}),
		queueLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_queue_length",
			Help: "Current queue length, by priority.",
		}, []string{"priority"}),
		queueTimeViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_queue_time_violations_total",
			Help: "Total number of low-priority dequeues whose queue time exceeded the configured threshold.",
		}),
		ongoingLowPriority: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_ongoing_low_priority",
			Help: "Number of low-priority tasks currently executing.",
		}),
		lastLowPriorityMillis: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_last_low_priority_dequeue_ms",
			Help: "Queue time in milliseconds of the most recently dequeued low-priority task.",
		}),
		threadsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_threads_started_total",
			Help: "Total number of worker threads started, including replacements from DetachSelf.",
		}),
		threadsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_threads_stopped_total",
			Help: "Total number of worker threads stopped.",
		}),
		queueFullTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_queue_full_total",
			Help: "Total number of bounded submissions rejected because the target queue was full, by priority.",
		}, []string{"priority"}),
		workerPanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_worker_panics_total",
			Help: "Total number of task panics caught at the worker boundary.",
		}),
		stealsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_work_steals_total",
			Help: "Total number of successful steals in the work-stealing backend.",
		}),
		stealAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_work_steal_attempts_total",
			Help: "Total number of steal attempts in the work-stealing backend.",
		}),
		mutexWaiting: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_mutex_waiting",
			Help: "Number of goroutines currently waiting to acquire an instrumented mutex, by name and mode.",
		}, []string{"name", "mode"}),
		mutexHeld: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_mutex_held",
			Help: "Number of goroutines currently holding an instrumented mutex, by name and mode.",
		}, []string{"name", "mode"}),
	}
}
