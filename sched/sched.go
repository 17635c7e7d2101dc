// Package sched runs parallel loops over a dense index range on a fixed set of worker threads.
//
// Each worker owns a contiguous block of chunks and claims them through an atomic cursor.
// A worker that runs out of chunks steals from the others by advancing their cursors,
// so irregular per-index work (e.g. skewed out-degree) still spreads across all threads.
package sched

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/utils"
)

const (
	cacheLine     = 64
	chunksPerTask = 16 // Target chunks per worker when no chunk size is given.
	maxChunk      = 1024
)

// One per worker, padded so that cursors of different workers never share a cache line.
type slot struct {
	next atomic.Uint64
	end  uint64
	_    [cacheLine - 16]byte
}

// Loops on one pool do not overlap: a second caller waits for the running loop. Loops must not
// nest; an operator that calls back into its own pool deadlocks. Check Busy first.
type Pool struct {
	threads uint32
	steal   bool
	slots   []slot
	mu      sync.Mutex
	busy    atomic.Bool
}

func NewPool(threads uint32, steal bool) *Pool {
	if threads == 0 {
		log.Panic().Msg("Invalid thread count.")
	} else if threads > uint32(runtime.NumCPU())*4 {
		log.Warn().Msg("Thread count " + utils.V(threads) + " is far above CPU count?")
	}
	return &Pool{threads: threads, steal: steal, slots: make([]slot, threads)}
}

func (p *Pool) Threads() uint32 {
	return p.threads
}

// Whether a parallel loop is running on the pool.
func (p *Pool) Busy() bool {
	return p.busy.Load()
}

// Calls fn once for every i in [0, n). tidx identifies the worker thread, in [0, Threads()).
func (p *Pool) ParallelFor(n uint32, fn func(tidx uint32, i uint32)) {
	p.ParallelForChunks(n, 0, func(tidx, begin, end uint32) {
		for i := begin; i < end; i++ {
			fn(tidx, i)
		}
	})
}

// Calls fn over disjoint [begin, end) chunks covering [0, n). chunk of 0 picks a size from n.
func (p *Pool) ParallelForChunks(n uint32, chunk uint32, fn func(tidx uint32, begin uint32, end uint32)) {
	if n == 0 {
		return
	}
	if chunk == 0 {
		chunk = utils.Max(1, utils.Min(maxChunk, n/(p.threads*chunksPerTask)))
	}
	numChunks := uint64((n + chunk - 1) / chunk)
	if p.threads == 1 || numChunks == 1 {
		fn(0, 0, n)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy.Store(true)
	defer p.busy.Store(false)

	T := uint64(p.threads)
	for t := uint64(0); t < T; t++ {
		p.slots[t].next.Store(numChunks * t / T)
		p.slots[t].end = numChunks * (t + 1) / T
	}

	run := func(tidx uint32, c uint64) {
		begin := uint32(c) * chunk
		fn(tidx, begin, utils.Min(n, begin+chunk))
	}

	var wg sync.WaitGroup
	var failure panicked
	wg.Add(int(p.threads))
	for t := uint32(0); t < p.threads; t++ {
		go func(tidx uint32) {
			defer wg.Done()
			defer failure.catch()
			own := &p.slots[tidx]
			for c := own.next.Add(1) - 1; c < own.end; c = own.next.Add(1) - 1 {
				run(tidx, c)
			}
			if !p.steal {
				return
			}
			for k := uint32(1); k < p.threads; k++ {
				victim := &p.slots[(tidx+k)%p.threads]
				for victim.next.Load() < victim.end {
					c := victim.next.Add(1) - 1
					if c >= victim.end {
						break
					}
					run(tidx, c)
				}
			}
		}(t)
	}
	wg.Wait()
	failure.rethrow()
}

// Runs fn once on every worker thread.
func (p *Pool) OnEachThread(fn func(tidx uint32)) {
	var wg sync.WaitGroup
	var failure panicked
	wg.Add(int(p.threads))
	for t := uint32(0); t < p.threads; t++ {
		go func(tidx uint32) {
			defer wg.Done()
			defer failure.catch()
			fn(tidx)
		}(t)
	}
	wg.Wait()
	failure.rethrow()
}

// First panic of a worker, raised again on the goroutine that started the loop.
type panicked struct {
	once  sync.Once
	value any
}

func (f *panicked) catch() {
	if r := recover(); r != nil {
		f.once.Do(func() { f.value = r })
	}
}

func (f *panicked) rethrow() {
	if f.value != nil {
		panic(f.value)
	}
}
