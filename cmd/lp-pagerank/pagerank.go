package main

import (
	"context"
	"math"

	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/utils"
)

const (
	DampingFactor = 0.85
	InitMass      = 1.0
)

// Synchronous PageRank: every round each vertex pushes rank/out-degree along its out edges, and
// masters take (1-d) + d*sum as their new rank. Self edges carry no rank. Ranks are not
// normalized; they sum to the number of vertices when no vertex is dangling.
type PageRank struct {
	g *graph.DistGraph

	Rank    *graph.Field[float64]
	degree  *graph.Field[uint32]  // Out edges over all hosts, self edges excluded.
	contrib *graph.Field[float64] // Rank received this round.

	Tolerance float64 // A master still changing by more than this keeps the loop going.
	Damping   float64

	residual *graph.Accumulator[float64]
	sum      *graph.Accumulator[float64]
}

func NewPageRank(ctx context.Context, g *graph.DistGraph, tolerance float64) *PageRank {
	return &PageRank{
		g: g,
		// Only masters write the rank; mirrors contribute nothing to the sum.
		Rank:      graph.DeclareField(ctx, g, "rank", graph.ReduceAdd[float64](), graph.WithBitset()),
		degree:    graph.DeclareField(ctx, g, "degree", graph.ReduceAdd[uint32](), graph.WithBitset()),
		contrib:   graph.DeclareField(ctx, g, "contrib", graph.ReduceAdd[float64](), graph.WithBitset()),
		Tolerance: tolerance,
		Damping:   DampingFactor,
		residual:  graph.NewAccumulator(g, graph.Max[float64]()),
		sum:       graph.NewAccumulator(g, graph.Sum[float64]()),
	}
}

// Counts out edges on every host, then sums them at the masters. Collective.
func (pr *PageRank) initializeGraph(ctx context.Context) {
	g, degree := pr.g, pr.degree
	degree.Fill(0)
	pr.Rank.Fill(InitMass)
	g.DoAll("InitializeGraph", g.NodesWithEdges(), func(_, src uint32) {
		var out uint32
		begin, end := g.Edges(src)
		for e := begin; e < end; e++ {
			if g.EdgeDst(e) != src {
				out++
			}
		}
		if out > 0 {
			degree.AtomicAdd(src, out)
		}
	})
	graph.Sync(ctx, degree, graph.Source, graph.Source)
}

func (pr *PageRank) Run(ctx context.Context) graph.DriverResult {
	g, rank, degree, contrib := pr.g, pr.Rank, pr.degree, pr.contrib
	pr.initializeGraph(ctx)

	return graph.Converge(ctx, g, "PageRank", func(ctx context.Context, round uint32, work *graph.Accumulator[uint64]) {
		contrib.Fill(0)
		g.DoAll("PushRank", g.NodesWithEdges(), func(_, src uint32) {
			if degree.Values[src] == 0 {
				return
			}
			share := rank.Values[src] / float64(degree.Values[src])
			begin, end := g.Edges(src)
			for e := begin; e < end; e++ {
				if dst := g.EdgeDst(e); dst != src {
					contrib.AtomicAdd(dst, share)
				}
			}
		})
		graph.Sync(ctx, contrib, graph.Destination, graph.Destination)

		pr.residual.Reset()
		g.DoAll("UpdateRank", g.MasterNodes(), func(tidx, lid uint32) {
			next := (1 - pr.Damping) + pr.Damping*contrib.Values[lid]
			diff := math.Abs(next - rank.Values[lid])
			pr.residual.Add(tidx, diff)
			if diff == 0 {
				return
			}
			rank.Set(lid, next)
			if diff > pr.Tolerance {
				work.Add(tidx, 1)
			}
		})
		// The next push reads the rank at sources.
		graph.Sync(ctx, rank, graph.Source, graph.Source)
		if r := max(0, pr.residual.Reduce(ctx)); g.HostID() == 0 {
			g.Log.Debug().Msg("Round " + utils.V(round) + " max residual " + utils.F("%.3e", r))
		}
	})
}

// Sum of the ranks of all vertices. Collective.
func (pr *PageRank) Sum(ctx context.Context) float64 {
	pr.sum.Reset()
	pr.g.DoAll("SumRank", pr.g.MasterNodes(), func(tidx, lid uint32) {
		pr.sum.Add(tidx, pr.Rank.Values[lid])
	})
	return pr.sum.Reduce(ctx)
}
