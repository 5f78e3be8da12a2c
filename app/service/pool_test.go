package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3)
	assert.Equal(t, 3, pool.Size())

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	visited := make(map[int]bool)

	pool.Each(20, func(i int) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)

		mu.Lock()
		visited[i] = true
		mu.Unlock()
	})

	assert.Len(t, visited, 20)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
	assert.Equal(t, int32(0), inFlight.Load())
}

func TestWorkerPoolReusable(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 1, pool.Size())

	var count atomic.Int32
	pool.Each(4, func(int) { count.Add(1) })
	pool.Each(0, func(int) { count.Add(1) })
	pool.Each(2, func(int) { count.Add(1) })
	assert.Equal(t, int32(6), count.Load())
}
