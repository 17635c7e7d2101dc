package partition

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScottSallinen/dgsync/graph"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEdgeList(t *testing.T) {
	path := writeFile(t, "# comment\n0 1 5\n\n1\t2 7\r\n4 0 2")

	el, err := LoadEdgeList(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), el.NumGlobal)
	assert.Equal(t, []Edge{{0, 1, 1}, {1, 2, 1}, {4, 0, 1}}, el.Edges)

	el, err = LoadEdgeList(path, LoadOptions{Weighted: true, Transpose: true})
	require.NoError(t, err)
	assert.Equal(t, []Edge{{1, 0, 5}, {2, 1, 7}, {0, 4, 2}}, el.Edges)

	el, err = LoadEdgeList(path, LoadOptions{Undirected: true})
	require.NoError(t, err)
	assert.Len(t, el.Edges, 6)
	assert.Contains(t, el.Edges, Edge{2, 1, 1})
}

func TestLoadEdgeListErrors(t *testing.T) {
	for _, content := range []string{"0\n", "a b\n", "0 1 x\n"} {
		_, err := LoadEdgeList(writeFile(t, content), LoadOptions{Weighted: true})
		assert.Error(t, err, content)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{OEC, IEC, CVC} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("hash")
	assert.Error(t, err)
}

func TestGridShape(t *testing.T) {
	for n, want := range map[uint32][2]uint32{1: {1, 1}, 2: {1, 2}, 3: {1, 3}, 4: {2, 2}, 6: {2, 3}, 9: {3, 3}} {
		rows, cols := gridShape(n)
		assert.Equal(t, want, [2]uint32{rows, cols}, "hosts %d", n)
	}
}

func randomEdges(n uint64, m int, seed uint64) EdgeList {
	rng := rand.New(rand.NewPCG(seed, 7))
	el := EdgeList{NumGlobal: n, Weighted: true}
	for i := 0; i < m; i++ {
		el.Edges = append(el.Edges, Edge{Src: rng.Uint64N(n), Dst: rng.Uint64N(n), Weight: uint32(rng.IntN(10) + 1)})
	}
	return el
}

func sortEdges(edges []Edge) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if a.Src != b.Src {
			return int(a.Src) - int(b.Src)
		}
		if a.Dst != b.Dst {
			return int(a.Dst) - int(b.Dst)
		}
		return int(a.Weight) - int(b.Weight)
	})
}

// Every policy keeps every edge exactly once and masters every vertex exactly once.
func TestBuildCoversGraph(t *testing.T) {
	el := randomEdges(50, 300, 1)
	for _, policy := range []Policy{OEC, IEC, CVC} {
		for _, hosts := range []uint32{1, 2, 3, 4} {
			parts := Build(el, hosts, policy)
			require.Len(t, parts, int(hosts))

			var edges []Edge
			mastered := make([]int, el.NumGlobal)
			for h, p := range parts {
				require.NotPanics(t, p.Validate, "%s host %d of %d", policy, h, hosts)
				for l := uint32(0); l < p.NumMasters; l++ {
					mastered[p.LocalToGlobal[l]]++
				}
				for src := uint32(0); src < p.NumLocal(); src++ {
					for e := p.RowStart[src]; e < p.RowStart[src+1]; e++ {
						edges = append(edges, Edge{p.LocalToGlobal[src], p.LocalToGlobal[p.EdgeDst[e]], p.EdgeWeight[e]})
					}
				}
			}
			want := slices.Clone(el.Edges)
			sortEdges(want)
			sortEdges(edges)
			assert.Equal(t, want, edges, "%s on %d hosts", policy, hosts)
			for gid, c := range mastered {
				assert.Equal(t, 1, c, "vertex %d under %s on %d hosts", gid, policy, hosts)
			}
		}
	}
}

func TestPolicyPlacement(t *testing.T) {
	el := randomEdges(40, 200, 2)
	owners := graph.NewBlockedOwners(el.NumGlobal, 4)
	for _, policy := range []Policy{OEC, IEC, CVC} {
		for h, p := range Build(el, 4, policy) {
			for src := uint32(0); src < p.NumLocal(); src++ {
				for e := p.RowStart[src]; e < p.RowStart[src+1]; e++ {
					u, v := p.LocalToGlobal[src], p.LocalToGlobal[p.EdgeDst[e]]
					var want uint32
					switch policy {
					case OEC:
						want = owners.Owner(u)
						assert.Less(t, src, p.NumMasters, "oec edges start at masters")
					case IEC:
						want = owners.Owner(v)
						assert.Less(t, p.EdgeDst[e], p.NumMasters, "iec edges end at masters")
					case CVC:
						want = owners.Owner(u)/2*2 + owners.Owner(v)%2
					}
					assert.Equal(t, want, uint32(h), "%s edge %d->%d", policy, u, v)
				}
			}
		}
	}
}

func TestBuildHostMatchesBuild(t *testing.T) {
	el := randomEdges(30, 100, 3)
	all := Build(el, 3, CVC)
	for h := uint32(0); h < 3; h++ {
		assert.Equal(t, all[h], BuildHost(el, 3, h, CVC))
	}
}
