package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityDequeOwnerPushPopIsLIFO(t *testing.T) {
	d := newPriorityDeque(4)
	a, b, c := newTestItem(), newTestItem(), newTestItem()

	d.push(a)
	d.push(b)
	d.push(c)

	got, ok := d.pop()
	require.True(t, ok)
	assert.Same(t, c, got)

	got, ok = d.pop()
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestPriorityDequeStealIsFIFO(t *testing.T) {
	d := newPriorityDeque(4)
	a, b, c := newTestItem(), newTestItem(), newTestItem()
	d.push(a)
	d.push(b)
	d.push(c)

	got, ok := d.steal()
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestPriorityDequeGrowsPastInitialSize(t *testing.T) {
	d := newPriorityDeque(2)
	for i := 0; i < 50; i++ {
		d.push(newTestItem())
	}
	assert.Equal(t, 50, d.size())

	popped := 0
	for !d.isEmpty() {
		if _, ok := d.pop(); ok {
			popped++
		}
	}
	assert.Equal(t, 50, popped)
}

func TestPriorityDequeStealFromEmptyFails(t *testing.T) {
	d := newPriorityDeque(4)
	_, ok := d.steal()
	assert.False(t, ok)
}

func TestPriorityDequeConcurrentStealersDontDuplicate(t *testing.T) {
	d := newPriorityDeque(16)
	const n = 200
	for i := 0; i < n; i++ {
		d.push(newTestItem())
	}

	var mu sync.Mutex
	seen := make(map[*WorkItem]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := d.steal()
				if !ok {
					return
				}
				mu.Lock()
				if seen[item] {
					t.Errorf("item stolen twice")
				}
				seen[item] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, n, len(seen))
}
