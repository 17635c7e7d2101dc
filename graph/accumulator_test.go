package graph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorAcrossHosts(t *testing.T) {
	sums := make([]uint64, 3)
	mins := make([]int32, 3)
	runHosts(t, triangleParts(), Options{NumThreads: 2}, func(ctx context.Context, g *DistGraph) {
		sum := NewAccumulator(g, Sum[uint64]())
		low := NewAccumulator(g, Min[int32]())
		g.OnEachThread(func(tidx uint32) {
			sum.Add(tidx, 10)
		})
		sum.Combine(uint64(g.HostID() + 1))
		if g.HostID() != 1 {
			low.Add(0, -int32(g.HostID()))
		}
		sums[g.HostID()] = sum.Reduce(ctx)
		mins[g.HostID()] = low.Reduce(ctx)
		assert.Equal(t, sums[g.HostID()], sum.Value())
	})
	// Two threads of 10 per host, plus 1 + 2 + 3.
	assert.Equal(t, []uint64{66, 66, 66}, sums)
	assert.Equal(t, []int32{-2, -2, -2}, mins)
}

// No host contributes: every host gets the identity.
func TestAccumulatorIdentity(t *testing.T) {
	type result struct {
		sum      float64
		min, max float64
		and, or  bool
	}
	results := make([]result, 3)
	runHosts(t, triangleParts(), Options{}, func(ctx context.Context, g *DistGraph) {
		results[g.HostID()] = result{
			sum: NewAccumulator(g, Sum[float64]()).Reduce(ctx),
			min: NewAccumulator(g, Min[float64]()).Reduce(ctx),
			max: NewAccumulator(g, Max[float64]()).Reduce(ctx),
			and: NewAccumulator(g, And()).Reduce(ctx),
			or:  NewAccumulator(g, Or()).Reduce(ctx),
		}
	})
	for _, r := range results {
		assert.Equal(t, 0.0, r.sum)
		assert.True(t, math.IsInf(r.min, 1))
		assert.True(t, math.IsInf(r.max, -1))
		assert.True(t, r.and)
		assert.False(t, r.or)
	}
}

func TestAccumulatorReset(t *testing.T) {
	parts := handPartitions(1, [][][2]GlobalID{{}})
	runHosts(t, parts, Options{}, func(ctx context.Context, g *DistGraph) {
		acc := NewAccumulator(g, Max[uint32]())
		acc.Add(1, 9)
		acc.Combine(4)
		assert.Equal(t, uint32(9), acc.Local())
		assert.Equal(t, uint32(9), acc.Reduce(ctx))

		acc.Reset()
		assert.Equal(t, uint32(0), acc.Local())
		assert.Equal(t, uint32(0), acc.Value())
		acc.Add(0, 2)
		assert.Equal(t, uint32(2), acc.Reduce(ctx))
	})
}

func TestAccumulatorBools(t *testing.T) {
	ands := make([]bool, 3)
	ors := make([]bool, 3)
	runHosts(t, triangleParts(), Options{}, func(ctx context.Context, g *DistGraph) {
		and := NewAccumulator(g, And())
		or := NewAccumulator(g, Or())
		and.Add(0, g.HostID() != 2)
		or.Add(1, g.HostID() == 2)
		ands[g.HostID()] = and.Reduce(ctx)
		ors[g.HostID()] = or.Reduce(ctx)
	})
	assert.Equal(t, []bool{false, false, false}, ands)
	assert.Equal(t, []bool{true, true, true}, ors)
}
