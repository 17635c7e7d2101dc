// Package partition splits an edge list over hosts. Every policy masters vertices in blocked
// ranges; they differ in which host stores each edge, and so in where mirrors appear.
package partition

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/ScottSallinen/dgsync/graph"
)

type Policy uint8

const (
	OEC Policy = iota // Outgoing edge cut: edges live with their source; mirrors are destinations.
	IEC               // Incoming edge cut: edges live with their destination; mirrors are sources.
	CVC               // Cartesian vertex cut: hosts form a grid; mirrors may be either.
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "oec":
		return OEC, nil
	case "iec":
		return IEC, nil
	case "cvc":
		return CVC, nil
	}
	return OEC, fmt.Errorf("unknown partitioning policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case IEC:
		return "iec"
	case CVC:
		return "cvc"
	}
	return "oec"
}

// Grid shape for n hosts: rows*cols == n, as square as possible.
func gridShape(n uint32) (rows, cols uint32) {
	rows = uint32(math.Sqrt(float64(n)))
	for n%rows != 0 {
		rows--
	}
	return rows, n / rows
}

// Host that stores each edge under the policy.
func placer(policy Policy, owners graph.BlockedOwners, numHosts uint32) func(e Edge) uint32 {
	switch policy {
	case IEC:
		return func(e Edge) uint32 { return owners.Owner(e.Dst) }
	case CVC:
		_, cols := gridShape(numHosts)
		return func(e Edge) uint32 {
			return owners.Owner(e.Src)/cols*cols + owners.Owner(e.Dst)%cols
		}
	}
	return func(e Edge) uint32 { return owners.Owner(e.Src) }
}

// Partitions for every host, for in-process clusters. Hosts are built concurrently.
func Build(el EdgeList, numHosts uint32, policy Policy) []*graph.Partition {
	parts := make([]*graph.Partition, numHosts)
	var wg sync.WaitGroup
	wg.Add(int(numHosts))
	for h := uint32(0); h < numHosts; h++ {
		go func() {
			defer wg.Done()
			parts[h] = BuildHost(el, numHosts, h, policy)
		}()
	}
	wg.Wait()
	return parts
}

// The partition of one host. Every host of a cluster derives the same placement from the same
// edge list, so hosts can build their own partition independently.
func BuildHost(el EdgeList, numHosts, host uint32, policy Policy) *graph.Partition {
	owners := graph.NewBlockedOwners(el.NumGlobal, numHosts)
	place := placer(policy, owners, numHosts)
	begin, end := owners.Range(host)
	isMaster := func(gid graph.GlobalID) bool { return gid >= begin && gid < end }

	var local []Edge
	var mirrors []graph.GlobalID
	for _, e := range el.Edges {
		if place(e) != host {
			continue
		}
		local = append(local, e)
		if !isMaster(e.Src) {
			mirrors = append(mirrors, e.Src)
		}
		if !isMaster(e.Dst) {
			mirrors = append(mirrors, e.Dst)
		}
	}
	slices.Sort(mirrors)
	mirrors = slices.Compact(mirrors)

	numMasters := uint32(end - begin)
	p := &graph.Partition{
		HostID:        host,
		NumHosts:      numHosts,
		NumGlobal:     el.NumGlobal,
		NumMasters:    numMasters,
		LocalToGlobal: make([]graph.GlobalID, 0, int(numMasters)+len(mirrors)),
		Owners:        owners,
	}
	for gid := begin; gid < end; gid++ {
		p.LocalToGlobal = append(p.LocalToGlobal, gid)
	}
	p.LocalToGlobal = append(p.LocalToGlobal, mirrors...)

	toLocal := func(gid graph.GlobalID) uint32 {
		if isMaster(gid) {
			return uint32(gid - begin)
		}
		i, _ := slices.BinarySearch(mirrors, gid)
		return numMasters + uint32(i)
	}

	// Counting sort of the local edges by source.
	n := p.NumLocal()
	p.RowStart = make([]uint64, n+1)
	for _, e := range local {
		p.RowStart[toLocal(e.Src)+1]++
	}
	for i := uint32(1); i <= n; i++ {
		p.RowStart[i] += p.RowStart[i-1]
	}
	next := slices.Clone(p.RowStart[:n])
	p.EdgeDst = make([]uint32, len(local))
	if el.Weighted {
		p.EdgeWeight = make([]uint32, len(local))
	}
	for _, e := range local {
		src := toLocal(e.Src)
		p.EdgeDst[next[src]] = toLocal(e.Dst)
		if p.EdgeWeight != nil {
			p.EdgeWeight[next[src]] = e.Weight
		}
		next[src]++
	}
	return p
}
