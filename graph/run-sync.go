package graph

import (
	"context"
	"time"

	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

type DriverResult struct {
	Iterations uint32
	State      DriverState
	Exit       ExitReason
	Work       uint64 // Updates made over all rounds and hosts.
}

// One BSP round: run the operators, then synchronize the fields they wrote. Updates made by
// this host are added to work; the round index starts at 0.
type Round func(ctx context.Context, round uint32, work *Accumulator[uint64])

// Runs rounds until a round makes no update on any host, the graph's MaxIterations is reached,
// or ctx is done. Collective: the hosts agree after every round on whether to go on.
func Converge(ctx context.Context, g *DistGraph, loop string, round Round) DriverResult {
	work := NewAccumulator(g, Sum[uint64]())
	votes := NewAccumulator(g, roundVotes())
	g.Stats.BeginLoop(loop)
	start := time.Now()

	res := DriverResult{State: Running}
	for res.State == Running {
		work.Reset()
		votes.Reset()
		round(ctx, res.Iterations, work)
		res.Iterations++

		votes.Combine(roundVote{Work: work.Local(), Stop: ctx.Err() != nil})
		// The vote itself must finish on every host, or some would leave the loop alone.
		res.tally(votes.Reduce(context.WithoutCancel(ctx)), g.Options.MaxIterations)
	}
	res.State = Terminated

	g.Stats.Add(0, loop, "Iterations", stats.Int(res.Iterations))
	g.Stats.Add(0, loop, "Work", stats.Int(res.Work))
	g.Stats.Add(0, loop, "Time", stats.Int(time.Since(start).Nanoseconds()))
	g.Log.Debug().Msg(loop + " " + res.Exit.String() + " after " + utils.V(res.Iterations) +
		" rounds, work " + utils.V(res.Work))
	return res
}
