package graph

import (
	"time"

	"github.com/ScottSallinen/dgsync/stats"
)

// A set of local ids to iterate: either a dense interval or an explicit list.
type NodeRange struct {
	begin, end uint32
	ids        []uint32
}

func (r NodeRange) Len() uint32 {
	if r.ids != nil {
		return uint32(len(r.ids))
	}
	return r.end - r.begin
}

// The i'th local id of the range.
func (r NodeRange) At(i uint32) uint32 {
	if r.ids != nil {
		return r.ids[i]
	}
	return r.begin + i
}

// Masters and mirrors.
func (g *DistGraph) AllNodes() NodeRange {
	return NodeRange{begin: 0, end: g.NumLocal()}
}

// Local vertices with at least one local out edge.
func (g *DistGraph) NodesWithEdges() NodeRange {
	return NodeRange{ids: g.withEdges}
}

func (g *DistGraph) MasterNodes() NodeRange {
	return NodeRange{begin: 0, end: g.numMasters}
}

func (g *DistGraph) GID(lid uint32) GlobalID {
	return g.localToGlobal[lid]
}

func (g *DistGraph) LID(gid GlobalID) (lid uint32, ok bool) {
	lid, ok = g.globalToLocal[gid]
	return lid, ok
}

func (g *DistGraph) IsMaster(lid uint32) bool {
	return lid < g.numMasters
}

// Whether this host masters the global vertex.
func (g *DistGraph) IsOwned(gid GlobalID) bool {
	lid, ok := g.globalToLocal[gid]
	return ok && lid < g.numMasters
}

// Whether the global vertex has a master or mirror on this host.
func (g *DistGraph) IsLocal(gid GlobalID) bool {
	_, ok := g.globalToLocal[gid]
	return ok
}

func (g *DistGraph) OwnerOf(lid uint32) uint32 {
	if lid < g.numMasters {
		return g.hostID
	}
	return g.owners.Owner(g.localToGlobal[lid])
}

// Calls fn for every local id of r on the worker pool.
func (g *DistGraph) NodeParallelFor(r NodeRange, fn func(tidx uint32, lid uint32)) {
	g.pool.ParallelFor(r.Len(), func(tidx, i uint32) {
		fn(tidx, r.At(i))
	})
}

// NodeParallelFor, reported under the named loop.
func (g *DistGraph) DoAll(loop string, r NodeRange, fn func(tidx uint32, lid uint32)) {
	start := time.Now()
	g.NodeParallelFor(r, fn)
	g.Stats.Add(0, loop, "Time", stats.Int(time.Since(start).Nanoseconds()))
}

// Runs fn once on every worker thread.
func (g *DistGraph) OnEachThread(fn func(tidx uint32)) {
	g.pool.OnEachThread(fn)
}
