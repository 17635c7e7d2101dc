package graph

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/enforce"
	"github.com/ScottSallinen/dgsync/utils"
)

type GlobalID = uint64

// Maps a vertex to the host that masters it.
type OwnerMap interface {
	Owner(gid GlobalID) uint32
}

// Contiguous global id ranges: host h owns [Bounds[h], Bounds[h+1]).
type BlockedOwners struct {
	Bounds []GlobalID
}

// Splits [0, numGlobal) into numHosts nearly equal blocks.
func NewBlockedOwners(numGlobal uint64, numHosts uint32) BlockedOwners {
	b := BlockedOwners{Bounds: make([]GlobalID, numHosts+1)}
	for h := uint64(0); h <= uint64(numHosts); h++ {
		b.Bounds[h] = numGlobal * h / uint64(numHosts)
	}
	return b
}

func (b BlockedOwners) Owner(gid GlobalID) uint32 {
	return uint32(sort.Search(len(b.Bounds)-1, func(h int) bool { return b.Bounds[h+1] > gid }))
}

func (b BlockedOwners) Range(host uint32) (begin, end GlobalID) {
	return b.Bounds[host], b.Bounds[host+1]
}

// The output of a partitioning strategy for one host: which vertices are local, which of those
// this host masters, and the local edges in compressed sparse row form.
//
// Local ids [0, NumMasters) are masters, [NumMasters, len(LocalToGlobal)) are mirrors.
type Partition struct {
	HostID        uint32
	NumHosts      uint32
	NumGlobal     uint64
	NumMasters    uint32
	LocalToGlobal []GlobalID
	Owners        OwnerMap
	RowStart      []uint64 // len(LocalToGlobal)+1 offsets into EdgeDst.
	EdgeDst       []uint32 // Local id of each edge destination.
	EdgeWeight    []uint32 // Optional, parallel to EdgeDst.
}

func (p *Partition) NumLocal() uint32 {
	return uint32(len(p.LocalToGlobal))
}

// Checks the partition is usable; a broken partition is a configuration error.
func (p *Partition) Validate() {
	n := p.NumLocal()
	enforce.ENFORCE(p.NumHosts > 0 && p.HostID < p.NumHosts, "host ", p.HostID, " of ", p.NumHosts)
	enforce.ENFORCE(p.Owners != nil, "partition has no owner map")
	enforce.ENFORCE(p.NumMasters <= n, "more masters than local vertices")
	enforce.ENFORCE(len(p.RowStart) == int(n)+1, "row offsets sized ", len(p.RowStart), " for ", n, " vertices")
	enforce.ENFORCE(p.RowStart[0] == 0 && p.RowStart[n] == uint64(len(p.EdgeDst)), "row offsets do not cover the edges")
	enforce.ENFORCE(p.EdgeWeight == nil || len(p.EdgeWeight) == len(p.EdgeDst), "edge weights not parallel to edges")

	seen := make(map[GlobalID]struct{}, n)
	for lid, gid := range p.LocalToGlobal {
		if gid >= p.NumGlobal {
			log.Panic().Msg("Local vertex " + utils.V(lid) + " has global id " + utils.V(gid) + " beyond " + utils.V(p.NumGlobal))
		}
		if _, dup := seen[gid]; dup {
			log.Panic().Msg("Global id " + utils.V(gid) + " appears twice on host " + utils.V(p.HostID))
		}
		seen[gid] = struct{}{}
		owner := p.Owners.Owner(gid)
		if master := uint32(lid) < p.NumMasters; master != (owner == p.HostID) {
			log.Panic().Msg("Host " + utils.V(p.HostID) + ": local " + utils.V(lid) + " (global " + utils.V(gid) +
				") is owned by host " + utils.V(owner) + " but placed as master=" + utils.V(master))
		}
		if p.RowStart[lid+1] < p.RowStart[lid] {
			log.Panic().Msg("Row offsets decrease at local " + utils.V(lid))
		}
	}
	for e, dst := range p.EdgeDst {
		if dst >= n {
			log.Panic().Msg("Edge " + utils.V(e) + " targets local " + utils.V(dst) + " of " + utils.V(n))
		}
	}
}
