package scheduler

import "sync"

// priorityDeque is a single worker's local double-ended queue for one
// priority class, generalized from a WorkStealingDeque[T] (push/pop at
// the tail by the owning worker, steal at the head by thieves) from a
// generic Job[T] payload to a non-generic *WorkItem, and from one deque
// per worker to four (one per Priority) so a worker can prefer its own
// higher-priority work
// before stealing.
type priorityDeque struct {
	mu     sync.RWMutex
	bottom int
	top    int
	buffer []*WorkItem
}

func newPriorityDeque(initialSize int) *priorityDeque {
	if initialSize <= 0 {
		initialSize = 64
	}
	return &priorityDeque{buffer: make([]*WorkItem, initialSize)}
}

// push appends to the tail. Any goroutine may call this (external
// submission and shutdown push onto other workers' deques); the mutex
// serializes pushers.
func (d *priorityDeque) push(item *WorkItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bottom-d.top >= len(d.buffer) {
		d.grow()
	}
	d.buffer[d.bottom%len(d.buffer)] = item
	d.bottom++
}

// pop removes from the tail (LIFO), for cache-friendly owner access.
func (d *priorityDeque) pop() (*WorkItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bottom := d.bottom - 1
	d.bottom = bottom
	top := d.top

	if top > bottom {
		d.bottom = top
		return nil, false
	}

	item := d.buffer[bottom%len(d.buffer)]
	if top == bottom {
		d.bottom = top
	}
	return item, true
}

// steal removes from the head (FIFO), for thief access. Unlike the
// owner's pop, multiple thieves may race here, so steal takes the full
// lock rather than a read lock: it mutates d.top, not just reads it.
func (d *priorityDeque) steal() (*WorkItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	top := d.top
	bottom := d.bottom
	if top >= bottom {
		return nil, false
	}

	item := d.buffer[top%len(d.buffer)]
	d.top++
	return item, true
}

func (d *priorityDeque) grow() {
	newBuffer := make([]*WorkItem, len(d.buffer)*2)
	for i := d.top; i < d.bottom; i++ {
		newBuffer[i%len(newBuffer)] = d.buffer[i%len(d.buffer)]
	}
	d.buffer = newBuffer
}

func (d *priorityDeque) size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bottom - d.top
}

func (d *priorityDeque) isEmpty() bool {
	return d.size() == 0
}
