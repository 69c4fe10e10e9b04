package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedMapPutGetRemove(t *testing.T) {
	m := NewShardedMap[string, int](4)
	m.Put("a", 1)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, m.Contains("a"))
	assert.True(t, m.Remove("a"))
	assert.False(t, m.Contains("a"))

	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestShardedMapLenUnderQuiescence(t *testing.T) {
	m := NewShardedMap[string, int](8)
	for i := 0; i < 100; i++ {
		m.Put(string(rune('a'+i%26))+string(rune(i)), i)
	}
	assert.Equal(t, 100, m.Len())
}

func TestShardedMapConcurrentAccess(t *testing.T) {
	m := NewShardedMap[int, int](16)
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Put(i, i*2)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 1000; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		assert.Equal(t, i*2, v)
	}
}

func TestShardedMapClear(t *testing.T) {
	m := NewShardedMap[string, int](4)
	m.Put("a", 1)
	m.Put("b", 2)
	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestQueueFIFOSingleObserver(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueConcurrentPushPop(t *testing.T) {
	q := NewQueue[int]()
	const n = 2000
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Push(i)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	var mu sync.Mutex
	var popWg sync.WaitGroup
	for w := 0; w < 8; w++ {
		popWg.Add(1)
		go func() {
			defer popWg.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	popWg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, 0, q.Len())
}

func TestAtomicCounter(t *testing.T) {
	c := NewAtomicCounter(0)
	c.Increment()
	c.Add(5)
	assert.Equal(t, int64(6), c.Get())

	prev := c.CompareAndSwap(6, 100)
	assert.Equal(t, int64(6), prev)
	assert.Equal(t, int64(100), c.Get())

	prev = c.CompareAndSwap(6, 200)
	assert.Equal(t, int64(100), prev)
	assert.Equal(t, int64(100), c.Get())

	c.Reset()
	assert.Equal(t, int64(0), c.Get())
}

func TestAtomicCounterConcurrentIncrement(t *testing.T) {
	c := NewAtomicCounter(0)
	const n = 5000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), c.Get())
}
