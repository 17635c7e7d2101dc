package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Only host 1 reports work, and only in round 0. Every host must still run round 1.
func TestConvergeWaitsForAllHosts(t *testing.T) {
	results := make([]DriverResult, 3)
	rounds := make([]uint32, 3)
	runHosts(t, triangleParts(), Options{}, func(ctx context.Context, g *DistGraph) {
		results[g.HostID()] = Converge(ctx, g, "Test", func(_ context.Context, round uint32, work *Accumulator[uint64]) {
			rounds[g.HostID()]++
			if g.HostID() == 1 && round == 0 {
				work.Add(0, 1)
			}
		})
	})
	for h, res := range results {
		assert.Equal(t, uint32(2), res.Iterations, "host %d", h)
		assert.Equal(t, Terminated, res.State)
		assert.Equal(t, ExitConverged, res.Exit)
		assert.Equal(t, uint64(1), res.Work)
		assert.Equal(t, uint32(2), rounds[h])
	}
}

func TestConvergeMaxIterations(t *testing.T) {
	results := make([]DriverResult, 3)
	runHosts(t, triangleParts(), Options{MaxIterations: 3}, func(ctx context.Context, g *DistGraph) {
		results[g.HostID()] = Converge(ctx, g, "Test", func(_ context.Context, _ uint32, work *Accumulator[uint64]) {
			work.Add(0, 1)
		})
	})
	for _, res := range results {
		assert.Equal(t, uint32(3), res.Iterations)
		assert.Equal(t, Terminated, res.State)
		assert.Equal(t, ExitMaxIterations, res.Exit)
		assert.Equal(t, uint64(9), res.Work)
	}
}

// Host 0 is cancelled during round 1; all hosts stop after that round.
func TestConvergeCancelled(t *testing.T) {
	results := make([]DriverResult, 3)
	runHosts(t, triangleParts(), Options{}, func(ctx context.Context, g *DistGraph) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		results[g.HostID()] = Converge(ctx, g, "Test", func(_ context.Context, round uint32, work *Accumulator[uint64]) {
			work.Add(0, 1)
			if g.HostID() == 0 && round == 1 {
				cancel()
			}
		})
	})
	for _, res := range results {
		assert.Equal(t, uint32(2), res.Iterations)
		assert.Equal(t, Terminated, res.State)
		assert.Equal(t, ExitCancelled, res.Exit)
	}
}

func TestConvergeWithSync(t *testing.T) {
	// A chain 0 -> 1 -> 2 -> 3 spread over three hosts; labels propagate one hop per round.
	// No vertex has two local in-edges, so the plain writes to next do not race.
	parts := handPartitions(4, [][][2]GlobalID{
		{{0, 1}},
		{{1, 2}},
		{{2, 3}},
	})
	labels := make([][]uint64, 3)
	results := make([]DriverResult, 3)
	runHosts(t, parts, Options{}, func(ctx context.Context, g *DistGraph) {
		f := DeclareField(ctx, g, "label", ReduceMin[uint64](), WithBitset())
		f.Fill(100)
		if l, ok := g.LID(0); ok && g.IsMaster(l) {
			f.Set(l, 0)
		}
		Sync(ctx, f, Any, Any)
		results[g.HostID()] = Converge(ctx, g, "Propagate", func(ctx context.Context, _ uint32, work *Accumulator[uint64]) {
			next := make([]uint64, g.NumLocal())
			copy(next, f.Values)
			g.NodeParallelFor(g.NodesWithEdges(), func(tidx, src uint32) {
				begin, end := g.Edges(src)
				for e := begin; e < end; e++ {
					if f.Values[src]+1 < next[g.EdgeDst(e)] {
						next[g.EdgeDst(e)] = f.Values[src] + 1
						f.MarkDirty(g.EdgeDst(e))
						work.Add(tidx, 1)
					}
				}
			})
			copy(f.Values, next)
			Sync(ctx, f, Destination, Source)
		})
		for l := uint32(0); l < g.NumMasters(); l++ {
			labels[g.HostID()] = append(labels[g.HostID()], f.Values[l])
		}
	})
	assert.Equal(t, [][]uint64{{0}, {1}, {2, 3}}, labels)
	assert.Equal(t, uint32(4), results[0].Iterations)
}

func TestTallyStates(t *testing.T) {
	var res DriverResult
	res.Iterations = 1
	res.tally(roundVote{Work: 4}, 0)
	assert.Equal(t, Running, res.State)

	res.Iterations = 2
	res.tally(roundVote{}, 0)
	assert.Equal(t, Converged, res.State)
	assert.Equal(t, ExitConverged, res.Exit)
	assert.Equal(t, uint64(4), res.Work)

	// No work outranks a stop vote or the iteration ceiling.
	res = DriverResult{Iterations: 3}
	res.tally(roundVote{Stop: true}, 3)
	assert.Equal(t, ExitConverged, res.Exit)

	res = DriverResult{Iterations: 3}
	res.tally(roundVote{Work: 1, Stop: true}, 3)
	assert.Equal(t, Terminated, res.State)
	assert.Equal(t, ExitCancelled, res.Exit)

	res = DriverResult{Iterations: 3}
	res.tally(roundVote{Work: 1}, 3)
	assert.Equal(t, ExitMaxIterations, res.Exit)
}
