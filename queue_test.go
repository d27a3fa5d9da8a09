package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItem() *WorkItem {
	return newWorkItem(context.Background(), LaneClientFast, func(context.Context) {})
}

func TestBoundedQueuePushPopFIFO(t *testing.T) {
	q := newBoundedQueue(4)
	a, b, c := newTestItem(), newTestItem(), newTestItem()

	require.True(t, q.push(a))
	require.True(t, q.push(b))
	require.True(t, q.push(c))

	got, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = q.pop()
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestBoundedQueueRejectsPastCapacity(t *testing.T) {
	q := newBoundedQueue(2)
	require.True(t, q.push(newTestItem()))
	require.True(t, q.push(newTestItem()))
	assert.False(t, q.push(newTestItem()))
	assert.Equal(t, int64(2), q.approxLen())
}

func TestBoundedQueuePopEmptyReturnsFalse(t *testing.T) {
	q := newBoundedQueue(2)
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestUnboundedQueueNeverRejects(t *testing.T) {
	q := newBoundedQueue(0)
	for i := 0; i < 1000; i++ {
		require.True(t, q.push(newTestItem()))
	}
	assert.Equal(t, int64(1000), q.approxLen())
}

func TestBoundedQueueConcurrentPushPopPreservesCount(t *testing.T) {
	q := newBoundedQueue(1000)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.push(newTestItem())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), q.approxLen())

	popped := 0
	for {
		if _, ok := q.pop(); ok {
			popped++
		} else {
			break
		}
	}
	assert.Equal(t, 100, popped)
	assert.Equal(t, int64(0), q.approxLen())
}
