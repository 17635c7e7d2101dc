package main

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/dgsync/cmd/common"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/partition"
)

// Sequential Brandes over the edge list, for comparison.
func referenceBC(el partition.EdgeList, sources []graph.GlobalID) []float64 {
	n := el.NumGlobal
	adj := make([][]uint64, n)
	for _, e := range el.Edges {
		adj[e.Src] = append(adj[e.Src], e.Dst)
	}
	bc := make([]float64, n)
	for _, s := range sources {
		dist := make([]int64, n)
		sigma := make([]float64, n)
		delta := make([]float64, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[s], sigma[s] = 0, 1
		order := []uint64{s}
		for i := 0; i < len(order); i++ {
			v := order[i]
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					order = append(order, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
				}
			}
		}
		for i := len(order) - 1; i >= 0; i-- {
			v := order[i]
			for _, w := range adj[v] {
				if dist[w] == dist[v]+1 {
					delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
				}
			}
			if v != s {
				bc[v] += delta[v]
			}
		}
	}
	return bc
}

func randomGraph(n uint64, m int, seed uint64) partition.EdgeList {
	rng := rand.New(rand.NewPCG(seed, 3))
	el := partition.EdgeList{NumGlobal: n}
	for i := 0; i < m; i++ {
		el.Edges = append(el.Edges, partition.Edge{Src: rng.Uint64N(n), Dst: rng.Uint64N(n), Weight: 1})
	}
	return el
}

// Runs BC over the partitions and gathers the centrality of all masters.
func runBC(t *testing.T, parts []*graph.Partition, opts graph.Options, sources []graph.GlobalID) ([]float64, []Sanity) {
	t.Helper()
	got := make([]float64, parts[0].NumGlobal)
	sanity := make([]Sanity, len(parts))
	var mu sync.Mutex
	err := common.RunLocal(context.Background(), parts, opts, nil, func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		bc := NewBC(ctx, g)
		return func(ctx context.Context, _ uint32) error {
			bc.Run(ctx, sources)
			s := bc.Sanity(ctx)
			mu.Lock()
			defer mu.Unlock()
			sanity[g.HostID()] = s
			for lid := uint32(0); lid < g.NumMasters(); lid++ {
				got[g.GID(lid)] = bc.Centrality.Values[lid]
			}
			return nil
		}, nil
	})
	require.NoError(t, err)
	return got, sanity
}

func TestPath(t *testing.T) {
	// 0 -> 1 -> 2 -> 3, and a shortcut 0 -> 2.
	el := partition.EdgeList{NumGlobal: 4, Edges: []partition.Edge{{Src: 0, Dst: 1, Weight: 1}, {Src: 1, Dst: 2, Weight: 1}, {Src: 2, Dst: 3, Weight: 1}, {Src: 0, Dst: 2, Weight: 1}}}
	got, _ := runBC(t, partition.Build(el, 2, partition.CVC), graph.Options{NumThreads: 2}, Sources(4, SourceOptions{}))
	// Only 2 lies on a shortest path between others: 0->3 and 1->3.
	assert.InDeltaSlice(t, []float64{0, 0, 2, 0}, got, 1e-9)
}

func TestMatchesReference(t *testing.T) {
	el := randomGraph(60, 240, 5)
	sources := Sources(el.NumGlobal, SourceOptions{Count: 12, Seed: 9})
	want := referenceBC(el, sources)

	for _, policy := range []partition.Policy{partition.OEC, partition.IEC, partition.CVC} {
		for _, hosts := range []uint32{1, 3, 4} {
			for _, opts := range []graph.Options{
				{NumThreads: 2},
				{NumThreads: 3, OnDemand: true},
				{NumThreads: 2, NoBitsets: true},
				{NumThreads: 1, NoFilters: true},
			} {
				got, sanity := runBC(t, partition.Build(el, hosts, policy), opts, sources)
				assert.InDeltaSlice(t, want, got, 1e-6, "%s on %d hosts %+v", policy, hosts, opts)

				var sum, high float64
				for _, v := range want {
					sum += v
					high = max(high, v)
				}
				for _, s := range sanity {
					assert.InDelta(t, sum, s.Sum, 1e-6)
					assert.InDelta(t, high, s.Max, 1e-9)
				}
			}
		}
	}
}

func TestSources(t *testing.T) {
	assert.Equal(t, []graph.GlobalID{7}, Sources(10, SourceOptions{Single: true, Source: 7}))
	assert.Len(t, Sources(10, SourceOptions{}), 10)
	assert.Len(t, Sources(10, SourceOptions{Count: 20}), 10)

	picked := Sources(100, SourceOptions{Count: 10, Seed: 4})
	assert.Len(t, picked, 10)
	assert.Equal(t, picked, Sources(100, SourceOptions{Count: 10, Seed: 4}), "every host must agree")
	seen := make(map[graph.GlobalID]bool)
	for _, s := range picked {
		assert.Less(t, s, uint64(100))
		assert.False(t, seen[s], "source %d twice", s)
		seen[s] = true
	}
}

func TestLaunchSingleSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "star.txt")
	// Everything goes through 1.
	require.NoError(t, os.WriteFile(path, []byte("0 1\n1 2\n1 3\n1 4\n"), 0o644))

	opts := graph.Options{
		Name:         path,
		NumHosts:     2,
		NumThreads:   2,
		Policy:       "oec",
		Verify:       true,
		OnDemand:     true,
		OutputPrefix: filepath.Join(dir, "bc"),
	}
	require.NoError(t, common.Launch(context.Background(), opts, newApp(SourceOptions{Single: true, Source: 0})))

	var lines []string
	for h := 0; h < 2; h++ {
		b, err := os.ReadFile(opts.OutputPrefix + "." + strconv.Itoa(h))
		require.NoError(t, err)
		lines = append(lines, strings.Fields(strings.ReplaceAll(string(b), " ", "="))...)
	}
	assert.Equal(t, []string{"0=0.000000", "1=3.000000", "2=0.000000", "3=0.000000", "4=0.000000"}, lines)

	err := common.Launch(context.Background(), opts, newApp(SourceOptions{Single: true, Source: 99}))
	assert.Error(t, err)
}
