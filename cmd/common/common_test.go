package common

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/partition"
)

func TestExtractGraphName(t *testing.T) {
	assert.Equal(t, "road", ExtractGraphName("/data/graphs/road.txt"))
	assert.Equal(t, "web", ExtractGraphName("web"))
	assert.Equal(t, "b", ExtractGraphName("x/a.b.el"))
}

// A cycle over three hosts; every host mirrors a vertex of its neighbour, so each round exchanges messages.
func cycleParts(hosts uint32) []*graph.Partition {
	el := partition.EdgeList{NumGlobal: 6}
	for v := uint64(0); v < 6; v++ {
		el.Edges = append(el.Edges, partition.Edge{Src: v, Dst: (v + 1) % 6, Weight: 1})
	}
	return partition.Build(el, hosts, partition.OEC)
}

// Host 1 fails fatally in the middle of a converging loop; the other hosts must not wait for
// it forever, and the launch reports host 1's failure.
func TestHostFailureAbortsCluster(t *testing.T) {
	for _, where := range []string{"round", "worker", "error"} {
		t.Run(where, func(t *testing.T) {
			app := func(ctx context.Context, g *graph.DistGraph) (Run, error) {
				label := graph.DeclareField(ctx, g, "label", graph.ReduceMin[uint64](), graph.WithBitset())
				return func(ctx context.Context, _ uint32) error {
					label.Fill(0)
					graph.Converge(ctx, g, "Failing", func(ctx context.Context, round uint32, work *graph.Accumulator[uint64]) {
						work.Add(0, 1)
						if g.HostID() == 1 && round == 1 {
							switch where {
							case "round":
								log.Panic().Msg("configuration error on host 1")
							case "worker":
								g.OnEachThread(func(tidx uint32) {
									if tidx == 1 {
										log.Panic().Msg("operator failed on host 1")
									}
								})
							}
						}
						graph.Sync(ctx, label, graph.Destination, graph.Source)
					})
					if where == "error" && g.HostID() == 1 {
						return assert.AnError
					}
					// Host 0 waits in a collective host 1 never joins.
					g.Barrier(ctx)
					return nil
				}, nil
			}

			done := make(chan error, 1)
			go func() {
				done <- RunLocal(context.Background(), cycleParts(3), graph.Options{NumThreads: 2, MaxIterations: 5}, nil, app)
			}()
			select {
			case err := <-done:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "host 1")
			case <-time.After(5 * time.Second):
				t.Fatal("cluster still blocked 5s after host 1 failed")
			}
		})
	}
}
