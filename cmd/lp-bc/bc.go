package main

import (
	"context"
	"math"

	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/utils"
)

const infinity = math.MaxUint32 / 4

// Betweenness centrality by Brandes' algorithm over unweighted shortest paths, one source at a
// time: a level synchronous BFS, shortest path counts forward by level, then dependencies
// backward by level.
type BC struct {
	g *graph.DistGraph

	Dist       *graph.Field[uint32]
	Sigma      *graph.Field[float64] // Number of shortest paths from the source.
	Delta      *graph.Field[float64] // Dependency of the source on the vertex.
	Centrality *graph.Field[float64] // Only masters hold the result.

	source   graph.GlobalID
	maxLevel *graph.Accumulator[uint32]
	bcMax    *graph.Accumulator[float64]
	bcMin    *graph.Accumulator[float64]
	bcSum    *graph.Accumulator[float64]
}

type Sanity struct {
	Max, Min, Sum float64
}

func NewBC(ctx context.Context, g *graph.DistGraph) *BC {
	opts := []graph.FieldOption{graph.WithBitset()}
	if g.Options.OnDemand {
		opts = append(opts, graph.OnDemand())
	}
	return &BC{
		g:          g,
		Dist:       graph.DeclareField(ctx, g, "dist", graph.ReduceMin[uint32](), opts...),
		Sigma:      graph.DeclareField(ctx, g, "sigma", graph.ReduceAdd[float64](), opts...),
		Delta:      graph.DeclareField(ctx, g, "delta", graph.ReduceAdd[float64](), opts...),
		Centrality: graph.DeclareField(ctx, g, "centrality", graph.ReduceAdd[float64]()),
		maxLevel:   graph.NewAccumulator(g, graph.Max[uint32]()),
		bcMax:      graph.NewAccumulator(g, graph.Max[float64]()),
		bcMin:      graph.NewAccumulator(g, graph.Min[float64]()),
		bcSum:      graph.NewAccumulator(g, graph.Sum[float64]()),
	}
}

// The operator wrote f at write; the next one reads it at read. Lazy fields only note the write.
func wrote[T utils.Number](ctx context.Context, f *graph.Field[T], write, read graph.Location) {
	if f.IsOnDemand() {
		f.MarkWritten(write)
		return
	}
	graph.Sync(ctx, f, write, read)
}

// The next operator reads f at loc. Only lazy fields have anything left to do.
func reading[T utils.Number](ctx context.Context, f *graph.Field[T], loc graph.Location) {
	if f.IsOnDemand() {
		graph.SyncOnDemand(ctx, f, loc)
	}
}

// Adds the dependencies of every source to the centrality of its masters. Collective.
func (bc *BC) Run(ctx context.Context, sources []graph.GlobalID) {
	bc.Centrality.Fill(0)
	for i, s := range sources {
		bc.source = s
		if bc.g.HostID() == 0 && i%5000 == 0 {
			bc.g.Log.Debug().Msg("Source #" + utils.V(i) + ": " + utils.V(s))
		}
		bc.initializeIteration()
		bc.sssp(ctx)
		levels := bc.levels(ctx)
		bc.numShortestPaths(ctx, levels)
		bc.dependencyPropagation(ctx, levels)
		bc.accumulate()
	}
}

func (bc *BC) initializeIteration() {
	g := bc.g
	bc.Dist.Fill(infinity)
	bc.Sigma.Fill(0)
	bc.Delta.Fill(0)
	// Every copy of the source knows it is the source.
	if lid, ok := g.LID(bc.source); ok {
		bc.Dist.Reset(lid, 0)
		bc.Sigma.Reset(lid, 1)
	}
}

// Round r expands the vertices at distance r.
func (bc *BC) sssp(ctx context.Context) {
	g, dist := bc.g, bc.Dist
	graph.Converge(ctx, g, "SSSP", func(ctx context.Context, round uint32, work *graph.Accumulator[uint64]) {
		reading(ctx, dist, graph.Source)
		g.DoAll("SSSP", g.NodesWithEdges(), func(tidx, src uint32) {
			if utils.AtomicLoad(&dist.Values[src]) != round {
				return
			}
			begin, end := g.Edges(src)
			for e := begin; e < end; e++ {
				if dist.AtomicMin(g.EdgeDst(e), round+1) {
					work.Add(tidx, 1)
				}
			}
		})
		// Later phases compare the distances of both ends of an edge.
		wrote(ctx, dist, graph.Destination, graph.Any)
	})
	reading(ctx, dist, graph.Any)
}

// Largest finite distance from the source.
func (bc *BC) levels(ctx context.Context) uint32 {
	g := bc.g
	bc.maxLevel.Reset()
	g.DoAll("MaxLevel", g.MasterNodes(), func(tidx, lid uint32) {
		if d := bc.Dist.Values[lid]; d != infinity {
			bc.maxLevel.Add(tidx, d)
		}
	})
	return bc.maxLevel.Reduce(ctx)
}

func (bc *BC) numShortestPaths(ctx context.Context, levels uint32) {
	g, dist, sigma := bc.g, bc.Dist, bc.Sigma
	for level := uint32(0); level < levels; level++ {
		reading(ctx, sigma, graph.Source)
		g.DoAll("NumShortestPaths", g.NodesWithEdges(), func(_, src uint32) {
			if dist.Values[src] != level {
				return
			}
			paths := sigma.Values[src]
			begin, end := g.Edges(src)
			for e := begin; e < end; e++ {
				if dst := g.EdgeDst(e); dist.Values[dst] == level+1 {
					sigma.AtomicAdd(dst, paths)
				}
			}
		})
		wrote(ctx, sigma, graph.Destination, graph.Any)
	}
	reading(ctx, sigma, graph.Any)
}

// Levels run from the deepest back to the source; the dependency of a vertex is final once the
// level below it is done.
func (bc *BC) dependencyPropagation(ctx context.Context, levels uint32) {
	g, dist, sigma, delta := bc.g, bc.Dist, bc.Sigma, bc.Delta
	for level := levels; level > 0; level-- {
		parent := level - 1
		reading(ctx, delta, graph.Destination)
		g.DoAll("DependencyPropagation", g.NodesWithEdges(), func(_, src uint32) {
			if dist.Values[src] != parent {
				return
			}
			var dep float64
			begin, end := g.Edges(src)
			for e := begin; e < end; e++ {
				if dst := g.EdgeDst(e); dist.Values[dst] == level {
					dep += sigma.Values[src] / sigma.Values[dst] * (1 + delta.Values[dst])
				}
			}
			if dep != 0 {
				delta.AtomicAdd(src, dep)
			}
		})
		wrote(ctx, delta, graph.Source, graph.Destination)
	}
	// Masters need the last contributions.
	reading(ctx, delta, graph.Destination)
}

func (bc *BC) accumulate() {
	g := bc.g
	g.DoAll("BC", g.MasterNodes(), func(_, lid uint32) {
		if d := bc.Delta.Values[lid]; d > 0 && g.GID(lid) != bc.source {
			bc.Centrality.Values[lid] += d
		}
	})
}

// Max, min and sum of the centrality of all vertices. Collective.
func (bc *BC) Sanity(ctx context.Context) Sanity {
	g := bc.g
	bc.bcMax.Reset()
	bc.bcMin.Reset()
	bc.bcSum.Reset()
	g.DoAll("Sanity", g.MasterNodes(), func(tidx, lid uint32) {
		v := bc.Centrality.Values[lid]
		bc.bcMax.Add(tidx, v)
		bc.bcMin.Add(tidx, v)
		bc.bcSum.Add(tidx, v)
	})
	return Sanity{Max: bc.bcMax.Reduce(ctx), Min: bc.bcMin.Reduce(ctx), Sum: bc.bcSum.Reduce(ctx)}
}
