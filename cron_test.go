package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronWheelFiresAfterDelay(t *testing.T) {
	w := newCronWheel(5 * time.Millisecond)
	w.start()
	defer w.stop()

	fired := make(chan struct{})
	w.schedule(10*time.Millisecond, func(cancelled bool) {
		require.False(t, cancelled)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("entry never fired")
	}
}

func TestCronWheelZeroDelayFiresSynchronously(t *testing.T) {
	w := newCronWheel(5 * time.Millisecond)
	var fired atomic.Bool
	w.schedule(0, func(cancelled bool) {
		assert.False(t, cancelled)
		fired.Store(true)
	})
	assert.True(t, fired.Load())
}

// TestCronWheelCancelStillFiresWithCancelledFlag asserts that cancelling
// a delayed entry does not discard its handler: it still runs exactly
// once at the original deadline, with cancelled=true instead of false.
func TestCronWheelCancelStillFiresWithCancelledFlag(t *testing.T) {
	w := newCronWheel(5 * time.Millisecond)
	w.start()
	defer w.stop()

	var sawCancelled atomic.Bool
	fired := make(chan struct{})
	handle := w.schedule(20*time.Millisecond, func(cancelled bool) {
		sawCancelled.Store(cancelled)
		close(fired)
	})
	require.True(t, handle.Cancel())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("cancelled entry never fired its handler")
	}
	assert.True(t, sawCancelled.Load())
}

func TestCronWheelCancelAfterFireReturnsFalse(t *testing.T) {
	w := newCronWheel(5 * time.Millisecond)
	w.start()
	defer w.stop()

	fired := make(chan struct{})
	handle := w.schedule(5*time.Millisecond, func(bool) { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("entry never fired")
	}
	time.Sleep(5 * time.Millisecond)
	assert.False(t, handle.Cancel())
}

func TestCronWheelOrdersByDeadline(t *testing.T) {
	w := newCronWheel(5 * time.Millisecond)
	w.start()
	defer w.stop()

	var order []int
	done := make(chan struct{})

	w.schedule(30*time.Millisecond, func(bool) {
		order = append(order, 2)
		close(done)
	})
	w.schedule(10*time.Millisecond, func(bool) {
		order = append(order, 1)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("entries never fired")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestWatchContextCancellationCancelsHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &DelayedHandle{}
	watchContextCancellation(ctx, handle)

	cancel()
	require.Eventually(t, handle.isCancelled, time.Second, time.Millisecond)
}
