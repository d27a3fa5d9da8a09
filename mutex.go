package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedMutex wraps a sync.Mutex with waiting/held gauges,
// generalized from original_source/arangod/Metrics/InstrumentedMutex.h's
// waitingExclusiveLocks/numExclusiveLocks gauge pair.
type InstrumentedMutex struct {
	name    string
	waiting prometheus.Gauge
	held    prometheus.Gauge
	mu      sync.Mutex
}

// NewInstrumentedMutex returns a mutex named name, reporting to m.
func NewInstrumentedMutex(m *Metrics, name string) *InstrumentedMutex {
	return &InstrumentedMutex{
		name:    name,
		waiting: m.mutexWaiting.WithLabelValues(name, "exclusive"),
		held:    m.mutexHeld.WithLabelValues(name, "exclusive"),
	}
}

// Lock acquires the mutex, tracking the wait in the waiting gauge and
// the acquisition in the held gauge.
func (m *InstrumentedMutex) Lock() {
	m.waiting.Inc()
	m.mu.Lock()
	m.waiting.Dec()
	m.held.Inc()
}

// Unlock releases the mutex.
func (m *InstrumentedMutex) Unlock() {
	m.held.Dec()
	m.mu.Unlock()
}

// TryLock attempts a non-blocking acquisition.
func (m *InstrumentedMutex) TryLock() bool {
	m.waiting.Inc()
	ok := m.mu.TryLock()
	m.waiting.Dec()
	if ok {
		m.held.Inc()
	}
	return ok
}

// TryLockFor attempts acquisition, polling until d elapses. sync.Mutex
// has no native timed acquisition, so this polls TryLock on a short
// ticker; no third-party timed-mutex library appears anywhere in the
// retrieved pack to ground a lock-free alternative on.
func (m *InstrumentedMutex) TryLockFor(d time.Duration) bool {
	deadline := time.Now().Add(d)
	const pollInterval = 200 * time.Microsecond
	for {
		if m.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// InstrumentedRWMutex wraps a sync.RWMutex with separate shared and
// exclusive waiting/held gauges.
type InstrumentedRWMutex struct {
	name            string
	waitingShared   prometheus.Gauge
	waitingExclusiv prometheus.Gauge
	heldShared      prometheus.Gauge
	heldExclusive   prometheus.Gauge
	mu              sync.RWMutex
}

// NewInstrumentedRWMutex returns an RWMutex named name, reporting to m.
func NewInstrumentedRWMutex(m *Metrics, name string) *InstrumentedRWMutex {
	return &InstrumentedRWMutex{
		name:            name,
		waitingShared:   m.mutexWaiting.WithLabelValues(name, "shared"),
		waitingExclusiv: m.mutexWaiting.WithLabelValues(name, "exclusive"),
		heldShared:      m.mutexHeld.WithLabelValues(name, "shared"),
		heldExclusive:   m.mutexHeld.WithLabelValues(name, "exclusive"),
	}
}

// Lock acquires exclusively.
func (m *InstrumentedRWMutex) Lock() {
	m.waitingExclusiv.Inc()
	m.mu.Lock()
	m.waitingExclusiv.Dec()
	m.heldExclusive.Inc()
}

// Unlock releases an exclusive acquisition.
func (m *InstrumentedRWMutex) Unlock() {
	m.heldExclusive.Dec()
	m.mu.Unlock()
}

// RLock acquires a shared lock.
func (m *InstrumentedRWMutex) RLock() {
	m.waitingShared.Inc()
	m.mu.RLock()
	m.waitingShared.Dec()
	m.heldShared.Inc()
}

// RUnlock releases a shared acquisition.
func (m *InstrumentedRWMutex) RUnlock() {
	m.heldShared.Dec()
	m.mu.RUnlock()
}
