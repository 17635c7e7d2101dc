package sched

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelForCoversEachIndexOnce(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		threads := uint32(rand.Intn(8) + 1)
		n := uint32(rand.Intn(5000))
		p := NewPool(threads, trial%2 == 0)

		hits := make([]int32, n)
		p.ParallelFor(n, func(tidx, i uint32) {
			assert.Less(t, tidx, threads)
			atomic.AddInt32(&hits[i], 1)
		})
		for i := range hits {
			require.EqualValues(t, 1, hits[i], "index %d with %d threads", i, threads)
		}
	}
}

func TestParallelForChunksExplicitSize(t *testing.T) {
	p := NewPool(4, true)
	var total atomic.Uint64
	p.ParallelForChunks(1001, 10, func(_, begin, end uint32) {
		assert.LessOrEqual(t, end-begin, uint32(10))
		for i := begin; i < end; i++ {
			total.Add(uint64(i))
		}
	})
	require.EqualValues(t, 1000*1001/2, total.Load())
}

func TestStealingSpreadsSkewedWork(t *testing.T) {
	const threads = 4
	p := NewPool(threads, true)
	var perThread [threads]atomic.Int32

	// All of the slow indices fall into worker 0's block.
	p.ParallelForChunks(64, 1, func(tidx, begin, _ uint32) {
		if begin < 16 {
			time.Sleep(2 * time.Millisecond)
		}
		perThread[tidx].Add(1)
	})
	sum := int32(0)
	helpers := 0
	for i := range perThread {
		sum += perThread[i].Load()
		if i != 0 && perThread[i].Load() > 16 {
			helpers++
		}
	}
	require.EqualValues(t, 64, sum)
	require.Positive(t, helpers, "no worker stole from the slow block")
}

func TestOnEachThread(t *testing.T) {
	p := NewPool(3, false)
	seen := make([]int32, 3)
	p.OnEachThread(func(tidx uint32) { atomic.AddInt32(&seen[tidx], 1) })
	require.Equal(t, []int32{1, 1, 1}, seen)
}

func TestWorkerPanicReachesCaller(t *testing.T) {
	p := NewPool(4, true)
	assert.PanicsWithValue(t, "chunk 7", func() {
		p.ParallelForChunks(64, 1, func(_, begin, _ uint32) {
			if begin == 7 {
				panic("chunk 7")
			}
		})
	})
	assert.False(t, p.Busy())
	assert.PanicsWithValue(t, "thread 2", func() {
		p.OnEachThread(func(tidx uint32) {
			if tidx == 2 {
				panic("thread 2")
			}
		})
	})

	// The pool still works afterwards.
	var total atomic.Uint64
	p.ParallelFor(100, func(_, i uint32) { total.Add(uint64(i)) })
	assert.EqualValues(t, 4950, total.Load())
}

func TestBusyDuringLoop(t *testing.T) {
	p := NewPool(2, false)
	assert.False(t, p.Busy())
	var seen atomic.Bool
	p.ParallelForChunks(16, 1, func(_, _, _ uint32) {
		if p.Busy() {
			seen.Store(true)
		}
	})
	assert.True(t, seen.Load())
	assert.False(t, p.Busy())
}
