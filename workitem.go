package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WorkItem is the single concrete unit the scheduler moves through its
// queues. It stores an erased invocable, an enqueue timestamp, and a
// captured log context snapshot. There is deliberately no work-item base
// hierarchy: the only polymorphism needed is the invocable itself.
type WorkItem struct {
	lane     Lane
	fn       func(context.Context)
	enqueued time.Time
	logCtx   logContext
}

// newWorkItem captures the current time and the ambient log context
// from ctx, and wraps fn for later invocation on a worker goroutine.
func newWorkItem(ctx context.Context, lane Lane, fn func(context.Context)) *WorkItem {
	return &WorkItem{
		lane:     lane,
		fn:       fn,
		enqueued: time.Now(),
		logCtx:   captureLogContext(ctx),
	}
}

// sentinelItem is the distinguished work item whose presence at the
// head of a queue or deque tells a worker to terminate. Pushing one per
// worker (rather than a separate stop-flag-plus-broadcast) unifies the
// empty-queue and shutdown code paths and avoids the race where a
// worker parks after the shutdown signal but before it is observed.
var sentinelItem = &WorkItem{}

func (w *WorkItem) isSentinel() bool { return w == sentinelItem }

// invoke installs the captured log context onto ctx, runs fn, and
// recovers any panic at this worker boundary: the failure is logged and
// counted, never propagated, and the worker loop continues. metrics may
// be nil in tests that don't care about panic accounting.
func (w *WorkItem) invoke(ctx context.Context, metrics *Metrics) {
	ctx = w.logCtx.install(ctx)
	logger := LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked",
				zap.String("lane", w.lane.String()),
				zap.Any("panic", r),
			)
			if metrics != nil {
				metrics.workerPanicsTotal.Inc()
			}
		}
	}()

	w.fn(ctx)
}
