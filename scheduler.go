package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// pool is the interface a Scheduler dispatches through, implemented by
// both centralPool and workStealingPool so Config.Backend can pick
// either without the rest of the scheduler caring which.
type pool interface {
	start()
	submit(item *WorkItem, priority Priority) bool
	queueLength(priority Priority) int64
	shutdown()
}

// Scheduler is the top-level entry point: it owns exactly one pool
// (central or work-stealing, per Config.Backend) that internally fans
// out over the four priorities, plus one cron wheel for delayed
// submissions. This mirrors
// original_source/arangod/Scheduler/SupervisedScheduler.h, which has one
// worker set pulling from all of _queues[NumberOfQueues] rather than a
// pool instance per priority.
type Scheduler struct {
	cfg     Config
	metrics *Metrics
	logger  *zap.Logger

	laneToPriority [numLanes]Priority

	pool pool
	cron *cronWheel

	running atomic.Bool
	mu      sync.Mutex

	connectionsAdmitted atomic.Int64
	connectionsRejected atomic.Int64
}

// New constructs a Scheduler. reg receives the Prometheus collectors; pass
// prometheus.NewRegistry() in tests, or a shared registry (for example
// the one backing promhttp.Handler()) in a running server.
func New(cfg Config, reg prometheus.Registerer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(reg)

	s := &Scheduler{
		cfg:            cfg,
		metrics:        metrics,
		logger:         logger,
		laneToPriority: defaultLaneToPriority,
		cron:           newCronWheel(cfg.CronWakeIntervalMax),
	}
	s.laneToPriority[LaneContinuation] = cfg.ContinuationPriority

	switch cfg.Backend {
	case BackendWorkStealing:
		s.pool = newWorkStealingPool(cfg, metrics)
	default:
		s.pool = newCentralPool(cfg, metrics)
	}

	return s
}

// Start spins up the pool's workers and the cron wheel. Calling Start
// again while the scheduler is running is a no-op; starting again after
// Shutdown is not supported.
func (s *Scheduler) Start(context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("scheduler starting",
		zap.Int("min_threads", s.cfg.MinThreads),
		zap.Int("max_threads", s.cfg.MaxThreads),
	)
	s.pool.start()
	s.cron.start()
	return nil
}

// Shutdown drains and stops every worker and the cron wheel. It is
// idempotent: calling it more than once, or before Start, is a no-op.
func (s *Scheduler) Shutdown(context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.logger.Info("scheduler shutting down")
	s.cron.stop()
	s.pool.shutdown()
	return nil
}

func (s *Scheduler) priorityFor(lane Lane) Priority {
	if lane < 0 || lane >= numLanes {
		return PriorityLow
	}
	return s.laneToPriority[lane]
}

// Submit enqueues fn to run under lane, unconditionally: if the target
// priority's queue is bounded and full, the submission blocks briefly by
// retrying rather than returning an error, so Submit always eventually
// admits. Callers that want a non-blocking bounded submission should use
// TrySubmitBounded instead.
func (s *Scheduler) Submit(ctx context.Context, lane Lane, fn func(context.Context)) error {
	if !s.running.Load() {
		return ErrShuttingDown
	}
	item := newWorkItem(ctx, lane, fn)
	priority := s.priorityFor(lane)

	if h, ok := workerHandleFromContext(ctx); ok {
		if h.submitLocal(item, priority) {
			return nil
		}
	}

	for !s.pool.submit(item, priority) {
		if !s.running.Load() {
			return ErrShuttingDown
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// TrySubmitBounded enqueues fn under lane, returning false immediately
// (without blocking) if the target priority's queue is currently full,
// or if lane maps to PriorityLow and Config.OngoingLowPriorityLimit
// low-priority tasks are already executing.
func (s *Scheduler) TrySubmitBounded(ctx context.Context, lane Lane, fn func(context.Context)) bool {
	if !s.running.Load() {
		return false
	}
	priority := s.priorityFor(lane)
	if priority == PriorityLow && s.cfg.OngoingLowPriorityLimit > 0 &&
		s.metrics.ongoingLowPriorityCount.Load() >= s.cfg.OngoingLowPriorityLimit {
		return false
	}
	item := newWorkItem(ctx, lane, fn)
	return s.pool.submit(item, priority)
}

// SubmitDelayed schedules handler to run under lane after d elapses,
// returning a handle the caller can Cancel before then. handler runs at
// most once, dispatched through the pool like any other task (including
// panic recovery); it does not run if the target priority's queue is
// full when the deadline passes, or if Shutdown happens before the
// deadline. cancelled is false for a normal fire, true
// if handle.Cancel() was called (or ctx was cancelled) before the
// deadline — cancelling never skips the call, it only flips that flag.
// The context passed to handler carries the log context captured at
// SubmitDelayed's call site, not ctx itself, which may well be cancelled
// or gone by the time the delay elapses.
func (s *Scheduler) SubmitDelayed(ctx context.Context, lane Lane, d time.Duration, handler func(ctx context.Context, cancelled bool)) *DelayedHandle {
	logCtx := captureLogContext(ctx)
	handle := s.cron.schedule(d, func(cancelled bool) {
		runCtx := logCtx.install(context.Background())
		item := newWorkItem(runCtx, lane, func(itemCtx context.Context) {
			handler(itemCtx, cancelled)
		})
		priority := s.priorityFor(lane)
		s.pool.submit(item, priority)
	})
	watchContextCancellation(ctx, handle)
	return handle
}

// Delay blocks the calling goroutine until d elapses, or returns
// ErrCancelled immediately if ctx is cancelled first. This is the
// awaitable counterpart to SubmitDelayed: where SubmitDelayed fires a
// handler asynchronously through the pool, Delay is for a task that
// wants to suspend its own execution for a while and then keep going
// inline.
func (s *Scheduler) Delay(ctx context.Context, d time.Duration) error {
	if !s.running.Load() {
		return ErrShuttingDown
	}

	resolved := make(chan struct{})
	handle := s.cron.schedule(d, func(bool) {
		close(resolved)
	})

	select {
	case <-resolved:
		return nil
	case <-ctx.Done():
		handle.Cancel()
		return ErrCancelled
	}
}

// Yield cooperatively reschedules the calling task: it submits a
// continuation item on LaneContinuation and parks the caller's goroutine on a
// channel until that continuation has run, then returns. This is the
// closest honest analogue Go has to suspending and resuming a task mid-
// execution, since goroutines cannot be parked and resumed by another
// goroutine the way a fiber or coroutine can.
func (s *Scheduler) Yield(ctx context.Context) error {
	h, ok := workerHandleFromContext(ctx)
	if !ok {
		return ErrNotInWorker
	}
	if !s.running.Load() {
		return ErrShuttingDown
	}

	resumed := make(chan struct{})
	item := newWorkItem(ctx, LaneContinuation, func(context.Context) {
		close(resumed)
	})
	if !h.submitLocal(item, s.priorityFor(LaneContinuation)) {
		s.pool.submit(item, s.priorityFor(LaneContinuation))
	}

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DetachSelf tells the pool backing the currently-running task's worker
// to spawn a replacement and let this goroutine keep running to
// completion outside the worker accounting. It is for tasks that must
// block for a long time (e.g. on external I/O) without starving the
// pool of a thread. It is only valid when called from within a task
// dispatched by this Scheduler.
func (s *Scheduler) DetachSelf(ctx context.Context) error {
	h, ok := workerHandleFromContext(ctx)
	if !ok {
		return ErrNotInWorker
	}
	return h.detachSelf()
}

// QueueStatistics reports the current approximate queue length for each
// priority, snapshot-consistent only to the extent the underlying
// counters are (see boundedQueue.approxLen).
func (s *Scheduler) QueueStatistics() [numPriorities]int64 {
	var out [numPriorities]int64
	for pr := Priority(0); pr < numPriorities; pr++ {
		out[pr] = s.pool.queueLength(pr)
	}
	return out
}

// ApproximateQueueFillGrade returns the sum of every priority's queue
// length over the sum of every priority's configured capacity, a single
// scalar in [0, 1] (0 if no priority has a bounded capacity).
func (s *Scheduler) ApproximateQueueFillGrade() float64 {
	var totalLen, totalCap int64
	for pr := Priority(0); pr < numPriorities; pr++ {
		totalLen += s.pool.queueLength(pr)
		totalCap += s.cfg.FifoMax[pr]
	}
	if totalCap <= 0 {
		return 0
	}
	return float64(totalLen) / float64(totalCap)
}

// UnavailabilityQueueFillGrade returns the configured fill grade at or
// above which the scheduler considers itself overloaded.
func (s *Scheduler) UnavailabilityQueueFillGrade() float64 {
	return s.cfg.UnavailabilityQueueFillGrade
}

// IsUnavailable reports whether the aggregate queue fill grade has
// reached UnavailabilityQueueFillGrade, the signal an accept loop uses to
// stop admitting new connections until the backlog drains.
func (s *Scheduler) IsUnavailable() bool {
	return s.ApproximateQueueFillGrade() >= s.UnavailabilityQueueFillGrade()
}

// AdmitConnection reports whether a new inbound connection should be
// accepted given current load, incrementing the corresponding admitted
// or rejected counter. This supplements the scheduler proper with the
// accept-side backpressure original_source/arangod's AcceptanceQueue
// provides, generalized here to a single boolean gate rather than a
// separate queueing stage, since this module does not own a network
// listener of its own.
func (s *Scheduler) AdmitConnection() bool {
	if s.IsUnavailable() {
		s.connectionsRejected.Add(1)
		return false
	}
	s.connectionsAdmitted.Add(1)
	return true
}

// ConnectionStats returns the lifetime admitted and rejected counts
// AdmitConnection has recorded.
func (s *Scheduler) ConnectionStats() (admitted, rejected int64) {
	return s.connectionsAdmitted.Load(), s.connectionsRejected.Load()
}
