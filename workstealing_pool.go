package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

const (
	initialDequeSize = 64
	stealBackoffMin  = 50 * time.Microsecond
	stealBackoffMax  = 5 * time.Millisecond
)

// workStealingPool is the BackendWorkStealing implementation: each
// worker owns one priorityDeque per Priority and serves its own deques
// first, falling back to stealing from a random peer, generalized from a
// WorkStealingDeque-based strategy and
// original_source/arangod/Scheduler/WorkStealingThreadPool.h's
// per-thread queue shape (without that header's intrusive WorkItem::next
// linkage, unnecessary once a deque owns its own storage).
type workStealingPool struct {
	cfg     Config
	metrics *Metrics

	mu      sync.Mutex
	workers []*stealingWorker

	submitCursor atomic.Int64
	nextWorkerID atomic.Int64
}

func newWorkStealingPool(cfg Config, metrics *Metrics) *workStealingPool {
	return &workStealingPool{cfg: cfg, metrics: metrics}
}

func (p *workStealingPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.cfg.MaxThreads; i++ {
		p.startWorkerLocked()
	}
}

func (p *workStealingPool) startWorkerLocked() {
	id := p.nextWorkerID.Add(1)
	w := &stealingWorker{
		id:   id,
		pool: p,
		done: make(chan struct{}),
		rng:  rand.New(rand.NewPCG(uint64(id), uint64(id)*2654435761+1)),
	}
	for pr := Priority(0); pr < numPriorities; pr++ {
		w.deques[pr] = newPriorityDeque(initialDequeSize)
	}
	p.workers = append(p.workers, w)
	p.metrics.threadsStarted.Inc()
	go w.run()
}

func (p *workStealingPool) workerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *workStealingPool) workerAt(i int) *stealingWorker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers[i]
}

func (p *workStealingPool) snapshotWorkers() []*stealingWorker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*stealingWorker, len(p.workers))
	copy(out, p.workers)
	return out
}

// submit assigns item to a worker's deque round-robin, the idiomatic
// stand-in for external submission in a work-stealing pool: the chosen
// worker need not ever run it itself, since idle peers will steal it.
func (p *workStealingPool) submit(item *WorkItem, priority Priority) bool {
	n := p.workerCount()
	if n == 0 {
		return false
	}
	idx := int(uint64(p.submitCursor.Add(1)) % uint64(n))
	w := p.workerAt(idx)

	if cap := p.cfg.FifoMax[priority]; cap > 0 && p.queueLength(priority) >= cap {
		p.metrics.queueFullTotal.WithLabelValues(priority.String()).Inc()
		return false
	}

	w.deques[priority].push(item)
	p.metrics.submittedTotal.WithLabelValues(item.lane.String(), priority.String()).Inc()
	p.metrics.queueLength.WithLabelValues(priority.String()).Set(float64(p.queueLength(priority)))
	return true
}

func (p *workStealingPool) queueLength(priority Priority) int64 {
	var total int64
	for _, w := range p.snapshotWorkers() {
		total += int64(w.deques[priority].size())
	}
	return total
}

func (p *workStealingPool) canPullFromQueue(pr Priority, skip *[numPriorities]int64) bool {
	if skip[pr] < p.cfg.PrioritySkipThreshold {
		return true
	}
	for lower := pr + 1; lower < numPriorities; lower++ {
		if p.queueLength(lower) > 0 {
			return false
		}
	}
	return true
}

func (p *workStealingPool) recordDequeue(pr Priority, skip *[numPriorities]int64) {
	for i := Priority(0); i < numPriorities; i++ {
		if i == pr {
			skip[i]++
		} else if i < pr {
			skip[i] = 0
		}
	}
}

// shutdown pushes one sentinel into each worker's own maintenance deque.
// A worker drains its own deques before stealing, but one whose deques
// are empty may steal a peer's sentinel and terminate on it in the
// owner's place; each sentinel stops whichever worker takes it.
func (p *workStealingPool) shutdown() {
	workers := p.snapshotWorkers()
	for _, w := range workers {
		w.deques[PriorityMaintenance].push(sentinelItem)
	}
	for _, w := range workers {
		<-w.done
	}
}

// stealingWorker is one goroutine owning four priority deques.
type stealingWorker struct {
	id       int64
	pool     *workStealingPool
	deques   [numPriorities]*priorityDeque
	detached atomic.Bool
	done     chan struct{}
	rng      *rand.Rand
}

func (w *stealingWorker) run() {
	defer close(w.done)

	ctx := withWorkerHandle(context.Background(), w)
	var skip [numPriorities]int64
	backoff := stealBackoffMin

	for {
		item, pr, ok := w.dequeueOwn(&skip)
		if !ok {
			item, pr, ok = w.steal()
		}
		if !ok {
			time.Sleep(backoff)
			if backoff < stealBackoffMax {
				backoff *= 2
			}
			continue
		}
		backoff = stealBackoffMin

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

func (w *stealingWorker) dequeueOwn(skip *[numPriorities]int64) (*WorkItem, Priority, bool) {
	for pr := Priority(0); pr < numPriorities; pr++ {
		if !w.pool.canPullFromQueue(pr, skip) {
			continue
		}
		if item, ok := w.deques[pr].pop(); ok {
			w.pool.recordDequeue(pr, skip)
			return item, pr, true
		}
	}
	return nil, 0, false
}

// steal tries every priority from most to least urgent, probing up to
// n-1 random peers per priority before giving up and letting the caller
// back off. Each worker carries its own PCG source seeded by worker ID,
// so concurrent thieves don't contend on a shared random source.
func (w *stealingWorker) steal() (*WorkItem, Priority, bool) {
	workers := w.pool.snapshotWorkers()
	n := len(workers)
	if n <= 1 {
		return nil, 0, false
	}

	for pr := Priority(0); pr < numPriorities; pr++ {
		for attempt := 0; attempt < n-1; attempt++ {
			victim := workers[w.rng.IntN(n)]
			if victim == w {
				continue
			}
			w.pool.metrics.stealAttemptsTotal.Inc()
			if item, ok := victim.deques[pr].steal(); ok {
				w.pool.metrics.stealsTotal.Inc()
				return item, pr, true
			}
		}
	}
	return nil, 0, false
}

func (w *stealingWorker) dispatch(ctx context.Context, item *WorkItem, pr Priority) {
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

func (w *stealingWorker) detachSelf() error {
	if !w.detached.CompareAndSwap(false, true) {
		return nil
	}
	w.pool.mu.Lock()
	w.pool.startWorkerLocked()
	w.pool.mu.Unlock()
	return nil
}

// submitLocal pushes directly onto this worker's own deque, the
// lower-latency path a task takes when it spawns follow-up work it
// would rather its own goroutine (or an idle thief) pick up next, rather
// than going through the pool-wide round robin.
func (w *stealingWorker) submitLocal(item *WorkItem, priority Priority) bool {
	if cap := w.pool.cfg.FifoMax[priority]; cap > 0 && w.pool.queueLength(priority) >= cap {
		w.pool.metrics.queueFullTotal.WithLabelValues(priority.String()).Inc()
		return false
	}
	w.deques[priority].push(item)
	w.pool.metrics.submittedTotal.WithLabelValues(item.lane.String(), priority.String()).Inc()
	return true
}
