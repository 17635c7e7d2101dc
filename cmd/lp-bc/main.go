package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ScottSallinen/dgsync/cmd/common"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

type SourceOptions struct {
	Single bool           // Only Source.
	Source graph.GlobalID // The single source.
	Count  uint64         // Sample this many sources at random; all vertices when 0.
	Seed   uint64
}

// The sources of a run, the same on every host.
func Sources(numGlobal uint64, opts SourceOptions) []graph.GlobalID {
	if opts.Single {
		return []graph.GlobalID{opts.Source}
	}
	if opts.Count == 0 || opts.Count >= numGlobal {
		all := make([]graph.GlobalID, numGlobal)
		for i := range all {
			all[i] = graph.GlobalID(i)
		}
		return all
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	picked := make(map[graph.GlobalID]struct{}, opts.Count)
	sources := make([]graph.GlobalID, 0, opts.Count)
	for uint64(len(sources)) < opts.Count {
		s := rng.Uint64N(numGlobal)
		if _, dup := picked[s]; dup {
			continue
		}
		picked[s] = struct{}{}
		sources = append(sources, s)
	}
	return sources
}

func newApp(so SourceOptions) common.App {
	return func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		if so.Single && so.Source >= g.NumGlobal() {
			return nil, fmt.Errorf("source %d is not in the graph of %d vertices", so.Source, g.NumGlobal())
		}
		bc := NewBC(ctx, g)
		sources := Sources(g.NumGlobal(), so)
		return func(ctx context.Context, _ uint32) error {
			bc.Run(ctx, sources)
			if err := ctx.Err(); err != nil {
				return err
			}
			sanity := bc.Sanity(ctx)
			g.Stats.Add(0, "Sanity", "MaxBC", stats.Float(sanity.Max))
			g.Stats.Add(0, "Sanity", "MinBC", stats.Float(sanity.Min))
			g.Stats.Add(0, "Sanity", "SumBC", stats.Float(sanity.Sum))
			if g.HostID() == 0 {
				g.Log.Info().Msg("Sources " + utils.V(len(sources)) + ", max BC " + utils.F("%f", sanity.Max) +
					", min BC " + utils.F("%f", sanity.Min) + ", BC sum " + utils.F("%f", sanity.Sum))
			}
			if g.Options.Verify {
				graph.WriteMastersFile(bc.Centrality, g.Options.OutputPrefix, func(v float64) string {
					return strconv.FormatFloat(v, 'f', 6, 64)
				})
			}
			return nil
		}, nil
	}
}

// Launch point. Parses command line arguments, and launches the graph execution.
func main() {
	srcPtr := flag.Uint64("src", 0, "Source vertex for single source BC.")
	singlePtr := flag.Bool("single", false, "Single source BC, from -src.")
	sourcesPtr := flag.Uint64("sources", 0, "Number of random sources. 0 uses every vertex.")
	seedPtr := flag.Uint64("seed", 1, "Seed for random sources.")

	common.Main(func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		return newApp(SourceOptions{Single: *singlePtr, Source: *srcPtr, Count: *sourcesPtr, Seed: *seedPtr})(ctx, g)
	}, nil)
}
