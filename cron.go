package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DelayedHandle lets a caller cancel a task scheduled via
// Scheduler.SubmitDelayed before it fires. Cancellation is level-triggered
// and checked once, at pop, not signalled through the wheel's goroutine,
// so Cancel never blocks on the wheel and is safe to call from any
// goroutine, any number of times, before or after the deadline passes.
// Cancelling never discards the entry: the handler still runs exactly
// once at the original deadline, just with cancelled=true instead of
// false. The flag is also set when the entry fires, so a Cancel after
// firing has no effect.
type DelayedHandle struct {
	cancelled atomic.Bool
}

// Cancel marks a still-pending task cancelled, so its handler fires with
// cancelled=true. It returns true the first time it does so, false if
// the task had already fired or Cancel was already called.
func (h *DelayedHandle) Cancel() bool {
	return h.cancelled.CompareAndSwap(false, true)
}

func (h *DelayedHandle) isCancelled() bool {
	return h.cancelled.Load()
}

// cronEntry is one pending delayed submission in the wheel's min-heap.
type cronEntry struct {
	deadline time.Time
	seq      int64 // breaks deadline ties in insertion order
	handle   *DelayedHandle
	submit   func(cancelled bool) // re-enters the scheduler's normal submit path
	index    int                  // maintained by container/heap
}

type cronHeap []*cronEntry

func (h cronHeap) Len() int { return len(h) }
func (h cronHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h cronHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *cronHeap) Push(x any) {
	e := x.(*cronEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *cronHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// cronWheel is the scheduler's single delay wheel: one goroutine, one
// min-heap ordered by deadline, with a bounded maximum wake interval so a
// newly inserted entry with a sooner deadline than whatever the wheel is
// currently sleeping toward is never delayed by more than that bound.
type cronWheel struct {
	wakeIntervalMax time.Duration

	mu      sync.Mutex
	heap    cronHeap
	nextSeq int64
	wake    chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	done         chan struct{}
}

func newCronWheel(wakeIntervalMax time.Duration) *cronWheel {
	if wakeIntervalMax <= 0 {
		wakeIntervalMax = 10 * time.Millisecond
	}
	return &cronWheel{
		wakeIntervalMax: wakeIntervalMax,
		wake:            make(chan struct{}, 1),
		shutdownCh:      make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (w *cronWheel) start() {
	go w.run()
}

func (w *cronWheel) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdownCh) })
	<-w.done
}

// schedule inserts a new entry and returns its cancellable handle. submit
// is invoked from the wheel's own goroutine once the delay elapses, with
// cancelled reflecting whether handle.Cancel() was called before then;
// it must not block. A delay <= 0 instead invokes submit(false)
// synchronously on the caller's goroutine before schedule returns.
func (w *cronWheel) schedule(delay time.Duration, submit func(cancelled bool)) *DelayedHandle {
	handle := &DelayedHandle{}
	if delay <= 0 {
		submit(false)
		// Already fired: a later Cancel is a no-op and returns false.
		handle.cancelled.Store(true)
		return handle
	}

	entry := &cronEntry{
		deadline: time.Now().Add(delay),
		handle:   handle,
		submit:   submit,
	}

	w.mu.Lock()
	entry.seq = w.nextSeq
	w.nextSeq++
	heap.Push(&w.heap, entry)
	w.mu.Unlock()

	w.nudge()
	return handle
}

func (w *cronWheel) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *cronWheel) run() {
	defer close(w.done)
	timer := time.NewTimer(w.wakeIntervalMax)
	defer timer.Stop()

	for {
		w.fireDue()

		wait := w.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-w.shutdownCh:
			return
		case <-timer.C:
		case <-w.wake:
		}
	}
}

// fireDue pops and runs every entry whose deadline has passed. An entry
// cancelled in the meantime still runs its handler exactly once, with
// cancelled=true instead of being discarded, per the "handler runs at
// most once, either as a normal fire or with cancelled=true" contract.
func (w *cronWheel) fireDue() {
	now := time.Now()
	for {
		w.mu.Lock()
		if len(w.heap) == 0 || w.heap[0].deadline.After(now) {
			w.mu.Unlock()
			return
		}
		entry := heap.Pop(&w.heap).(*cronEntry)
		w.mu.Unlock()

		// Setting the flag here settles the handle: a Cancel that won
		// the race leaves cancelled=true, and any later Cancel returns
		// false.
		cancelled := !entry.handle.cancelled.CompareAndSwap(false, true)
		entry.submit(cancelled)
	}
}

// nextWait returns how long the wheel should sleep before its next look,
// clamped to wakeIntervalMax so a shorter-fused entry inserted while
// asleep is never starved of attention for longer than that bound (the
// wake channel handles the common case; this is the backstop).
func (w *cronWheel) nextWait() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.heap) == 0 {
		return w.wakeIntervalMax
	}
	until := time.Until(w.heap[0].deadline)
	if until <= 0 {
		return time.Millisecond
	}
	if until > w.wakeIntervalMax {
		return w.wakeIntervalMax
	}
	return until
}

// watchContextCancellation ties a DelayedHandle's cancellation to a
// context.Context, for callers that want "cancel automatically if ctx is
// cancelled first" without polling.
func watchContextCancellation(ctx context.Context, handle *DelayedHandle) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		handle.Cancel()
	}()
}
