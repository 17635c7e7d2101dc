package main

import (
	"context"
	"strconv"

	"github.com/ScottSallinen/dgsync/cmd/common"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/utils"
)

func app(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
	cc := NewCC(ctx, g)
	return func(ctx context.Context, _ uint32) error {
		res := cc.Run(ctx)
		components := cc.Count(ctx)
		if g.HostID() == 0 {
			g.Log.Info().Msg("Components: " + utils.V(components) + " after " + utils.V(res.Iterations) + " rounds (" + res.Exit.String() + ")")
		}
		if g.Options.Verify {
			graph.WriteMastersFile(cc.Label, g.Options.OutputPrefix, func(v uint64) string { return strconv.FormatUint(v, 10) })
		}
		return nil
	}, nil
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	common.Main(app, func(o *graph.Options) {
		o.Undirected = true // undirected should always be true.
	})
}
