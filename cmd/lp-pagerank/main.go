package main

import (
	"context"
	"flag"
	"strconv"

	"github.com/ScottSallinen/dgsync/cmd/common"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

func newApp(tolerance float64) common.App {
	return func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		pr := NewPageRank(ctx, g, tolerance)
		return func(ctx context.Context, _ uint32) error {
			res := pr.Run(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}
			sum := pr.Sum(ctx)
			g.Stats.Add(0, "Sanity", "SumRank", stats.Float(sum))
			if g.HostID() == 0 {
				g.Log.Info().Msg("Rank sum " + utils.F("%f", sum) + " over " + utils.V(g.NumGlobal()) + " vertices after " +
					utils.V(res.Iterations) + " rounds (" + res.Exit.String() + ")")
			}
			if g.Options.Verify {
				graph.WriteMastersFile(pr.Rank, g.Options.OutputPrefix, func(v float64) string {
					return strconv.FormatFloat(v, 'f', 6, 64)
				})
			}
			return nil
		}, nil
	}
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	tolPtr := flag.Float64("tol", 0.001, "Convergence tolerance: stop once no rank changes by more than this.")
	common.Main(func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		return newApp(*tolPtr)(ctx, g)
	}, nil)
}
