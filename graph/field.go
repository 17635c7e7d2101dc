package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/utils"
)

type fieldDecl struct {
	signature string
}

type fieldConfig struct {
	bitset    bool
	onDemand  bool
	broadcast any
}

type FieldOption func(*fieldConfig)

// Track locally written vertices, so that synchronization only sends those.
func WithBitset() FieldOption {
	return func(c *fieldConfig) { c.bitset = true }
}

// Synchronize lazily: writers declare where they wrote with MarkWritten, readers call SyncOnDemand.
// Needs a bitset.
func OnDemand() FieldOption {
	return func(c *fieldConfig) { c.onDemand = true }
}

// Replaces the default overwrite of a mirror with its master's value.
func WithBroadcast[T utils.Number](fn func(mirror *T, master T)) FieldOption {
	return func(c *fieldConfig) { c.broadcast = fn }
}

// A named per vertex value, stored as a parallel array indexed by local id.
type Field[T utils.Number] struct {
	Values []T

	g         *DistGraph
	name      string
	reducer   Reducer[T]
	broadcast func(mirror *T, master T)
	synced    []T          // Mirror values as of their last synchronization; additive reducers only.
	dirty     utils.Bitmap // nil without a bitset.
	onDemand  bool

	pendingWrite uint8 // Roles written since the last reduce.
	staleFor     uint8 // Roles of mirrors not yet refreshed since the last reduce.
}

// Declares a field on the graph. Collective: every host declares the same fields in the same
// order, with the same type and reducer; any disagreement is fatal.
func DeclareField[T utils.Number](ctx context.Context, g *DistGraph, name string, reducer Reducer[T], opts ...FieldOption) *Field[T] {
	var cfg fieldConfig
	for _, o := range opts {
		o(&cfg)
	}
	if g.Options.NoBitsets && !cfg.onDemand {
		cfg.bitset = false
	}
	if cfg.onDemand && !cfg.bitset {
		log.Panic().Msg("Field " + name + ": on-demand synchronization needs a dirty bitset")
	}
	if reducer.Combine == nil {
		log.Panic().Msg("Field " + name + ": reducer has no combine function")
	}

	var zero T
	sig := fmt.Sprintf("%s|%T|%s|bitset=%t|ondemand=%t", name, zero, reducer.Name, cfg.bitset, cfg.onDemand)

	g.fieldsMu.Lock()
	if _, dup := g.fields[name]; dup {
		g.fieldsMu.Unlock()
		log.Panic().Msg("Field " + name + " declared twice")
	}
	g.fields[name] = fieldDecl{signature: sig}
	g.fieldsMu.Unlock()

	all, err := g.ep.AllGather(ctx, []byte(sig))
	if err != nil {
		log.Panic().Err(err).Msg("Field " + name + ": declaration exchange failed")
	}
	for h, other := range all {
		if string(other) != sig {
			log.Panic().Msg("Field declaration mismatch: host " + utils.V(g.hostID) + " has [" + sig +
				"], host " + utils.V(h) + " has [" + string(other) + "]")
		}
	}

	n := g.NumLocal()
	f := &Field[T]{
		Values:    make([]T, n),
		g:         g,
		name:      name,
		reducer:   reducer,
		broadcast: overwrite[T],
		onDemand:  cfg.onDemand,
	}
	if cfg.broadcast != nil {
		fn, ok := cfg.broadcast.(func(*T, T))
		if !ok {
			log.Panic().Msg("Field " + name + ": broadcast function is for another type")
		}
		f.broadcast = fn
	}
	if reducer.additive {
		f.synced = make([]T, n)
	}
	if cfg.bitset {
		f.dirty = utils.NewBitmap(n)
	}
	return f
}

func (f *Field[T]) Name() string {
	return f.name
}

func (f *Field[T]) Graph() *DistGraph {
	return f.g
}

func (f *Field[T]) HasBitset() bool {
	return f.dirty != nil
}

func (f *Field[T]) IsOnDemand() bool {
	return f.onDemand
}

// Writes v and marks the vertex for synchronization.
func (f *Field[T]) Set(lid uint32, v T) {
	f.Values[lid] = v
	f.MarkDirty(lid)
}

// Marks the vertex for synchronization. Safe for concurrent use.
func (f *Field[T]) MarkDirty(lid uint32) {
	if f.dirty != nil {
		f.dirty.Set(lid)
	}
}

func (f *Field[T]) IsDirty(lid uint32) bool {
	return f.dirty == nil || f.dirty.Get(lid)
}

// Number of marked vertices; every local vertex without a bitset.
func (f *Field[T]) DirtyCount() int {
	if f.dirty == nil {
		return int(f.g.NumLocal())
	}
	return f.dirty.Count()
}

// Atomically lowers the value to v; marks the vertex and returns true if it did.
func (f *Field[T]) AtomicMin(lid uint32, v T) bool {
	if utils.AtomicMin(&f.Values[lid], v) > v {
		f.MarkDirty(lid)
		return true
	}
	return false
}

// Atomically raises the value to v; marks the vertex and returns true if it did.
func (f *Field[T]) AtomicMax(lid uint32, v T) bool {
	if utils.AtomicMax(&f.Values[lid], v) < v {
		f.MarkDirty(lid)
		return true
	}
	return false
}

// Atomically adds delta and marks the vertex.
func (f *Field[T]) AtomicAdd(lid uint32, delta T) {
	utils.AtomicAdd(&f.Values[lid], delta)
	f.MarkDirty(lid)
}

// Writes v as the synchronized value of the vertex: it is not a contribution and is not sent.
// Every host holding the vertex is expected to write the same value.
func (f *Field[T]) Reset(lid uint32, v T) {
	f.Values[lid] = v
	if f.synced != nil {
		f.synced[lid] = v
	}
}

// Resets every local vertex to v, clearing all pending synchronization state. Runs serially when
// called from inside a loop of the graph's pool.
func (f *Field[T]) Fill(v T) {
	fill := func(_, begin, end uint32) {
		for i := begin; i < end; i++ {
			f.Values[i] = v
		}
		if f.synced != nil {
			copy(f.synced[begin:end], f.Values[begin:end])
		}
	}
	if f.g.pool.Busy() {
		fill(0, 0, f.g.NumLocal())
	} else {
		f.g.pool.ParallelForChunks(f.g.NumLocal(), 0, fill)
	}
	f.clearPending()
}

func (f *Field[T]) clearPending() {
	if f.dirty != nil {
		f.dirty.Zeroes()
	}
	f.pendingWrite, f.staleFor = 0, 0
}

func (f *Field[T]) String() string {
	var b strings.Builder
	b.WriteString(f.name + "{")
	for lid, v := range f.Values {
		if lid > 0 {
			b.WriteString(" ")
		}
		b.WriteString(utils.V(f.g.GID(uint32(lid))) + ":" + utils.V(v))
	}
	b.WriteString("}")
	return b.String()
}
