package graph

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/comm"
	"github.com/ScottSallinen/dgsync/utils"
)

// An associative combine with its identity.
type Monoid[T any] struct {
	Name     string
	Identity T
	Combine  func(a, b T) T
}

func Sum[T utils.Number]() Monoid[T] {
	return Monoid[T]{Name: "sum", Combine: func(a, b T) T { return a + b }}
}

func Min[T utils.Number]() Monoid[T] {
	return Monoid[T]{Name: "min", Identity: utils.MaxOf[T](), Combine: utils.Min[T]}
}

func Max[T utils.Number]() Monoid[T] {
	return Monoid[T]{Name: "max", Identity: utils.MinOf[T](), Combine: utils.Max[T]}
}

func And() Monoid[bool] {
	return Monoid[bool]{Name: "and", Identity: true, Combine: func(a, b bool) bool { return a && b }}
}

func Or() Monoid[bool] {
	return Monoid[bool]{Name: "or", Combine: func(a, b bool) bool { return a || b }}
}

type accSlot[T any] struct {
	v T
	_ [64]byte
}

// A global value folded from per thread contributions across all hosts.
// Worker threads add to their own slot; Reduce combines the slots, then the hosts.
type Accumulator[T any] struct {
	g       *DistGraph
	m       Monoid[T]
	slots   []accSlot[T]
	mu      sync.Mutex
	serial  T // Contributions from outside the worker threads.
	reduced T
}

func NewAccumulator[T any](g *DistGraph, m Monoid[T]) *Accumulator[T] {
	a := &Accumulator[T]{g: g, m: m, slots: make([]accSlot[T], g.NumThreads())}
	a.Reset()
	return a
}

// Back to the identity, locally. Every host resets before contributing.
func (a *Accumulator[T]) Reset() {
	for i := range a.slots {
		a.slots[i].v = a.m.Identity
	}
	a.serial = a.m.Identity
	a.reduced = a.m.Identity
}

// Contribution from worker thread tidx. Not safe for concurrent use with the same tidx.
func (a *Accumulator[T]) Add(tidx uint32, v T) {
	s := &a.slots[tidx]
	s.v = a.m.Combine(s.v, v)
}

// Contribution from any goroutine.
func (a *Accumulator[T]) Combine(v T) {
	a.mu.Lock()
	a.serial = a.m.Combine(a.serial, v)
	a.mu.Unlock()
}

// This host's contributions so far.
func (a *Accumulator[T]) Local() T {
	a.mu.Lock()
	acc := a.serial
	a.mu.Unlock()
	for i := range a.slots {
		acc = a.m.Combine(acc, a.slots[i].v)
	}
	return acc
}

// Combines the contributions of every host; all hosts get the same value. Collective.
func (a *Accumulator[T]) Reduce(ctx context.Context) T {
	v, err := comm.AllReduce(ctx, a.g.ep, a.Local(), a.m.Combine)
	if err != nil {
		log.Panic().Err(err).Msg("Reduce of accumulator " + a.m.Name + " failed")
	}
	a.reduced = v
	return v
}

// Result of the last Reduce.
func (a *Accumulator[T]) Value() T {
	return a.reduced
}
