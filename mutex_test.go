package scheduler

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedMutexLockUnlock(t *testing.T) {
	m := NewInstrumentedMutex(NewMetrics(prometheus.NewRegistry()), "test")
	m.Lock()
	m.Unlock()

	assert.True(t, m.TryLock())
	m.Unlock()
}

func TestInstrumentedMutexTryLockFailsWhileHeld(t *testing.T) {
	m := NewInstrumentedMutex(NewMetrics(prometheus.NewRegistry()), "test")
	m.Lock()
	defer m.Unlock()
	assert.False(t, m.TryLock())
}

func TestInstrumentedMutexTryLockForTimesOut(t *testing.T) {
	m := NewInstrumentedMutex(NewMetrics(prometheus.NewRegistry()), "test")
	m.Lock()
	defer m.Unlock()

	start := time.Now()
	ok := m.TryLockFor(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestInstrumentedMutexTracksHeldGauge(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewInstrumentedMutex(metrics, "test")

	m.Lock()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.mutexHeld.WithLabelValues("test", "exclusive")))
	m.Unlock()
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.mutexHeld.WithLabelValues("test", "exclusive")))
}

func TestInstrumentedRWMutexAllowsConcurrentReaders(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewInstrumentedRWMutex(metrics, "test")

	m.RLock()
	m.RLock()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.mutexHeld.WithLabelValues("test", "shared")))
	m.RUnlock()
	m.RUnlock()
}

func TestInstrumentedRWMutexExclusiveExcludesShared(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewInstrumentedRWMutex(metrics, "test")

	m.Lock()
	done := make(chan struct{})
	go func() {
		m.RLock()
		close(done)
		m.RUnlock()
	}()

	select {
	case <-done:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired lock after writer released it")
	}
	require.True(t, true)
}
