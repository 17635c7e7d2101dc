package main

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/dgsync/cmd/common"
	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/partition"
)

// Two components: {0, 3, 7, 8, 9} and {1, 2, 4, 5, 6}.
var multipleComponents = [][2]uint64{
	{1, 4}, {7, 0}, {2, 1}, {3, 0}, {4, 2}, {8, 3}, {4, 5}, {6, 2}, {7, 3}, {8, 9}, {9, 0},
}

func undirected(pairs [][2]uint64, n uint64) partition.EdgeList {
	el := partition.EdgeList{NumGlobal: n}
	for _, p := range pairs {
		el.Edges = append(el.Edges, partition.Edge{Src: p[0], Dst: p[1], Weight: 1}, partition.Edge{Src: p[1], Dst: p[0], Weight: 1})
	}
	return el
}

// Runs CC over the partitions and gathers the labels of all masters.
func runCC(t *testing.T, parts []*graph.Partition, opts graph.Options) (labels map[uint64]uint64, components []uint64) {
	t.Helper()
	labels = make(map[uint64]uint64)
	components = make([]uint64, len(parts))
	var mu sync.Mutex
	err := common.RunLocal(context.Background(), parts, opts, nil, func(ctx context.Context, g *graph.DistGraph) (common.Run, error) {
		cc := NewCC(ctx, g)
		return func(ctx context.Context, _ uint32) error {
			res := cc.Run(ctx)
			count := cc.Count(ctx)
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, graph.ExitConverged, res.Exit)
			components[g.HostID()] = count
			for lid := uint32(0); lid < g.NumMasters(); lid++ {
				labels[g.GID(lid)] = cc.Label.Values[lid]
			}
			return nil
		}, nil
	})
	require.NoError(t, err)
	return labels, components
}

func TestMultipleComponents(t *testing.T) {
	el := undirected(multipleComponents, 10)
	expectations := []uint64{0, 1, 1, 0, 1, 1, 1, 0, 0, 0}
	for _, policy := range []partition.Policy{partition.OEC, partition.IEC, partition.CVC} {
		for _, hosts := range []uint32{1, 2, 3, 4} {
			labels, components := runCC(t, partition.Build(el, hosts, policy), graph.Options{NumThreads: 2})
			for gid, want := range expectations {
				assert.Equal(t, want, labels[uint64(gid)], "%s on %d hosts: vertex %d", policy, hosts, gid)
			}
			for _, c := range components {
				assert.Equal(t, uint64(2), c)
			}
		}
	}
}

// Sequential union find, for comparison.
func referenceComponents(el partition.EdgeList) []uint64 {
	parent := make([]uint64, el.NumGlobal)
	for i := range parent {
		parent[i] = uint64(i)
	}
	var find func(uint64) uint64
	find = func(x uint64) uint64 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range el.Edges {
		a, b := find(e.Src), find(e.Dst)
		if a < b {
			parent[b] = a
		} else if b < a {
			parent[a] = b
		}
	}
	out := make([]uint64, el.NumGlobal)
	for i := range out {
		out[i] = find(uint64(i))
	}
	return out
}

func TestRandomGraphMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	var pairs [][2]uint64
	for i := 0; i < 120; i++ {
		pairs = append(pairs, [2]uint64{rng.Uint64N(200), rng.Uint64N(200)})
	}
	el := undirected(pairs, 200)
	want := referenceComponents(el)

	for _, opts := range []graph.Options{
		{NumThreads: 3},
		{NumThreads: 2, NoBitsets: true},
		{NumThreads: 1, NoFilters: true},
		{NumThreads: 4, NoSteal: true},
	} {
		for _, policy := range []partition.Policy{partition.OEC, partition.CVC} {
			labels, _ := runCC(t, partition.Build(el, 4, policy), opts)
			for gid, w := range want {
				if !assert.Equal(t, w, labels[uint64(gid)], "%s %+v: vertex %d", policy, opts, gid) {
					break
				}
			}
		}
	}
}

func TestLaunchFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "components.txt")
	content := "# src dst\n"
	for _, p := range multipleComponents {
		content += strconv.FormatUint(p[0], 10) + " " + strconv.FormatUint(p[1], 10) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	opts := graph.Options{
		Name:         path,
		NumHosts:     3,
		NumThreads:   2,
		Undirected:   true,
		Policy:       "iec",
		Runs:         2,
		Verify:       true,
		OutputPrefix: filepath.Join(dir, "labels"),
		StatsFile:    filepath.Join(dir, "stats"),
	}
	require.NoError(t, common.Launch(context.Background(), opts, app))

	var all string
	for h := 0; h < 3; h++ {
		b, err := os.ReadFile(opts.OutputPrefix + "." + strconv.Itoa(h))
		require.NoError(t, err)
		all += string(b)
		_, err = os.Stat(opts.StatsFile + "." + strconv.Itoa(h))
		assert.NoError(t, err)
	}
	assert.Equal(t, "0 0\n1 1\n2 1\n3 0\n4 1\n5 1\n6 1\n7 0\n8 0\n9 0\n", all)
}
