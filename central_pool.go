package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// centralPool is the BackendCentral implementation: one bounded queue per
// priority shared by every worker, generalized from
// original_source/arangod/Scheduler/SupervisedScheduler.h's single
// _workerStates set pulling from _queues[NumberOfQueues] via
// canPullFromQueue, rather than one pool instance per priority.
type centralPool struct {
	cfg     Config
	metrics *Metrics

	queues [numPriorities]*boundedQueue

	// mu is the pool mutex guarding the workers slice. Lock order is
	// always pool mutex before any individual worker's own state, never
	// the reverse.
	mu      sync.Mutex
	workers []*centralWorker

	nextWorkerID atomic.Int64
}

func newCentralPool(cfg Config, metrics *Metrics) *centralPool {
	p := &centralPool{cfg: cfg, metrics: metrics}
	for pr := Priority(0); pr < numPriorities; pr++ {
		p.queues[pr] = newBoundedQueue(cfg.FifoMax[pr])
	}
	return p
}

func (p *centralPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.cfg.MaxThreads; i++ {
		p.startWorkerLocked()
	}
}

// startWorkerLocked spawns one worker goroutine and records it. Callers
// must hold p.mu.
func (p *centralPool) startWorkerLocked() {
	w := &centralWorker{
		id:   p.nextWorkerID.Add(1),
		pool: p,
		done: make(chan struct{}),
	}
	p.workers = append(p.workers, w)
	p.metrics.threadsStarted.Inc()
	go w.run()
}

func (p *centralPool) submit(item *WorkItem, priority Priority) bool {
	ok := p.queues[priority].push(item)
	if !ok {
		p.metrics.queueFullTotal.WithLabelValues(priority.String()).Inc()
		return false
	}
	p.metrics.submittedTotal.WithLabelValues(item.lane.String(), priority.String()).Inc()
	p.metrics.queueLength.WithLabelValues(priority.String()).Set(float64(p.queues[priority].approxLen()))
	return true
}

func (p *centralPool) queueLength(priority Priority) int64 {
	return p.queues[priority].approxLen()
}

// shutdown pushes one sentinel per live worker into the highest-priority
// queue and waits for every worker goroutine to observe one and return.
// Pushing sentinels rather than closing a done channel means a worker
// mid-drain of real work always finishes in FIFO order relative to the
// sentinel, and a worker that is momentarily blocked in its select picks
// the sentinel up exactly like any other item.
func (p *centralPool) shutdown() {
	p.mu.Lock()
	n := len(p.workers)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		for !p.queues[PriorityMaintenance].push(sentinelItem) {
			runtime.Gosched()
		}
	}

	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	for _, w := range workers {
		<-w.done
	}
}

// canPullFromQueue decides whether a worker holding skip's counters may
// pull from priority pr right now. A priority that has been served
// PrioritySkipThreshold times in a row is passed over as long as any
// strictly lower priority still has pending work, generalized from
// SupervisedScheduler::canPullFromQueue's starvation guard.
func (p *centralPool) canPullFromQueue(pr Priority, skip *[numPriorities]int64) bool {
	if skip[pr] < p.cfg.PrioritySkipThreshold {
		return true
	}
	for lower := pr + 1; lower < numPriorities; lower++ {
		if p.queues[lower].approxLen() > 0 {
			return false
		}
	}
	return true
}

func (p *centralPool) recordDequeue(pr Priority, skip *[numPriorities]int64) {
	for i := Priority(0); i < numPriorities; i++ {
		if i == pr {
			skip[i]++
		} else if i < pr {
			skip[i] = 0
		}
	}
}

// tryDequeue attempts a non-blocking pull across all priorities in
// urgency order, honoring canPullFromQueue's fairness guard.
func (p *centralPool) tryDequeue(skip *[numPriorities]int64) (*WorkItem, Priority, bool) {
	for pr := Priority(0); pr < numPriorities; pr++ {
		if !p.canPullFromQueue(pr, skip) {
			continue
		}
		if item, ok := p.queues[pr].pop(); ok {
			p.recordDequeue(pr, skip)
			return item, pr, true
		}
	}
	return nil, 0, false
}

// centralWorker is one goroutine pulling from the shared queues.
type centralWorker struct {
	id       int64
	pool     *centralPool
	detached atomic.Bool
	done     chan struct{}
}

func (w *centralWorker) run() {
	defer close(w.done)

	ctx := withWorkerHandle(context.Background(), w)
	var skip [numPriorities]int64

	for {
		item, pr, ok := w.pool.tryDequeue(&skip)
		if !ok {
			var shutdown bool
			item, pr, shutdown = w.blockingDequeue()
			if shutdown {
				w.pool.metrics.threadsStopped.Inc()
				return
			}
			w.pool.recordDequeue(pr, &skip)
		}

		if item.isSentinel() {
			w.pool.metrics.threadsStopped.Inc()
			return
		}

		w.dispatch(ctx, item, pr)

		if w.detached.Load() {
			w.pool.metrics.threadsStopped.Inc()
			return
		}
	}
}

// blockingDequeue parks until any queue has work. The third return value
// is always false: a sentinel drawn here is returned like any other item
// and handled by the same isSentinel check as one drawn from tryDequeue.
func (w *centralWorker) blockingDequeue() (*WorkItem, Priority, bool) {
	q := &w.pool.queues
	select {
	case item := <-q[PriorityMaintenance].recvChan():
		q[PriorityMaintenance].onPopped()
		return item, PriorityMaintenance, false
	case item := <-q[PriorityHigh].recvChan():
		q[PriorityHigh].onPopped()
		return item, PriorityHigh, false
	case item := <-q[PriorityMedium].recvChan():
		q[PriorityMedium].onPopped()
		return item, PriorityMedium, false
	case item := <-q[PriorityLow].recvChan():
		q[PriorityLow].onPopped()
		return item, PriorityLow, false
	}
}

func (w *centralWorker) dispatch(ctx context.Context, item *WorkItem, pr Priority) {
	lane := item.lane.String()
	w.pool.metrics.dequeuedTotal.WithLabelValues(lane, pr.String()).Inc()
	w.pool.metrics.queueLength.WithLabelValues(pr.String()).Set(float64(w.pool.queueLength(pr)))

	if pr == PriorityLow {
		w.pool.metrics.beginLowPriorityTask()
		defer w.pool.metrics.endLowPriorityTask()

		queueMillis := time.Since(item.enqueued).Milliseconds()
		w.pool.metrics.lastLowPriorityMillis.Set(float64(queueMillis))
		if queueMillis > w.pool.cfg.QueueTimeViolationThresholdMS {
			w.pool.metrics.queueTimeViolations.Inc()
		}
	}

	item.invoke(ctx, w.pool.metrics)
	w.pool.metrics.doneTotal.WithLabelValues(lane, pr.String()).Inc()
}

// detachSelf spawns a replacement worker and marks this one to exit once
// its current task returns, implementing the "detach self, keep running
// to completion, let a replacement take over waiting for new work"
// semantics a long-running task needs.
func (w *centralWorker) detachSelf() error {
	if !w.detached.CompareAndSwap(false, true) {
		return nil
	}
	w.pool.mu.Lock()
	w.pool.startWorkerLocked()
	w.pool.mu.Unlock()
	return nil
}

func (w *centralWorker) submitLocal(item *WorkItem, priority Priority) bool {
	return w.pool.submit(item, priority)
}
