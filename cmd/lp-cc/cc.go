package main

import (
	"context"

	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/utils"
)

// Labels every vertex with the smallest global id in its component. Labels are pushed along
// out edges, so the graph should be symmetric for weak components.
type CC struct {
	g     *graph.DistGraph
	Label *graph.Field[uint64]
	roots *graph.Accumulator[uint64]
}

func NewCC(ctx context.Context, g *graph.DistGraph) *CC {
	return &CC{
		g:     g,
		Label: graph.DeclareField(ctx, g, "label", graph.ReduceMin[uint64](), graph.WithBitset()),
		roots: graph.NewAccumulator(g, graph.Sum[uint64]()),
	}
}

func (cc *CC) Run(ctx context.Context) graph.DriverResult {
	g, label := cc.g, cc.Label

	// Every copy of a vertex starts at its own id, so nothing needs sending yet.
	g.DoAll("InitializeGraph", g.AllNodes(), func(_, lid uint32) {
		label.Reset(lid, g.GID(lid))
	})

	return graph.Converge(ctx, g, "ConnectedComp", func(ctx context.Context, _ uint32, work *graph.Accumulator[uint64]) {
		g.DoAll("ConnectedComp", g.NodesWithEdges(), func(tidx, src uint32) {
			mine := utils.AtomicLoad(&label.Values[src])
			begin, end := g.Edges(src)
			for e := begin; e < end; e++ {
				if label.AtomicMin(g.EdgeDst(e), mine) {
					work.Add(tidx, 1)
				}
			}
		})
		// Written at destinations; the next round reads sources.
		graph.Sync(ctx, label, graph.Destination, graph.Source)
	})
}

// Number of distinct components, from the masters of every host. Collective.
func (cc *CC) Count(ctx context.Context) uint64 {
	cc.roots.Reset()
	cc.g.DoAll("CountComponents", cc.g.MasterNodes(), func(tidx, lid uint32) {
		if cc.Label.Values[lid] == cc.g.GID(lid) {
			cc.roots.Add(tidx, 1)
		}
	})
	return cc.roots.Reduce(ctx)
}
