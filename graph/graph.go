package graph

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/comm"
	"github.com/ScottSallinen/dgsync/sched"
	"github.com/ScottSallinen/dgsync/stats"
	"github.com/ScottSallinen/dgsync/utils"
)

// Role of a local vertex in the local edges; decides which location qualifiers cover it.
const (
	roleSource      uint8 = 1 << 0
	roleDestination uint8 = 1 << 1
)

// Where, relative to the local edges, a field is written or read.
type Location uint8

const (
	Any Location = iota
	Source
	Destination
	numLocations
)

func (l Location) String() string {
	switch l {
	case Source:
		return "src"
	case Destination:
		return "dst"
	}
	return "any"
}

func (l Location) matches(role uint8) bool {
	switch l {
	case Source:
		return role&roleSource != 0
	case Destination:
		return role&roleDestination != 0
	}
	return true
}

// One host's partition of a distributed graph. The topology is immutable; per vertex data lives
// in fields declared on the graph, which are kept consistent between masters and mirrors by Sync.
type DistGraph struct {
	Options Options
	Stats   *stats.Manager
	RunID   uuid.UUID // Same on every host of one run.
	Log     zerolog.Logger

	ep   *comm.Endpoint
	pool *sched.Pool

	hostID        uint32
	numHosts      uint32
	numGlobal     uint64
	numMasters    uint32
	localToGlobal []GlobalID
	globalToLocal map[GlobalID]uint32
	owners        OwnerMap
	rowStart      []uint64
	edgeDst       []uint32
	edgeWeight    []uint32
	roles         []uint8
	withEdges     []uint32

	pattern commPattern

	fieldsMu sync.Mutex
	fields   map[string]fieldDecl
}

// Builds the local graph from this host's partition. Collective: every host calls New with
// its own partition, and the hosts exchange their mirror lists to build the communication pattern.
func New(ctx context.Context, ep *comm.Endpoint, part *Partition, opts Options) *DistGraph {
	part.Validate()
	if ep.ID() != part.HostID || ep.NumHosts() != part.NumHosts {
		log.Panic().Msg("Endpoint is host " + utils.V(ep.ID()) + " of " + utils.V(ep.NumHosts()) +
			", partition is for host " + utils.V(part.HostID) + " of " + utils.V(part.NumHosts))
	}
	opts.Defaults()

	g := &DistGraph{
		Options:       opts,
		Stats:         stats.NewManager(opts.NumThreads),
		Log:           utils.HostLogger(part.HostID),
		ep:            ep,
		pool:          sched.NewPool(opts.NumThreads, !opts.NoSteal),
		hostID:        part.HostID,
		numHosts:      part.NumHosts,
		numGlobal:     part.NumGlobal,
		numMasters:    part.NumMasters,
		localToGlobal: part.LocalToGlobal,
		globalToLocal: make(map[GlobalID]uint32, len(part.LocalToGlobal)),
		owners:        part.Owners,
		rowStart:      part.RowStart,
		edgeDst:       part.EdgeDst,
		edgeWeight:    part.EdgeWeight,
		roles:         make([]uint8, len(part.LocalToGlobal)),
		fields:        make(map[string]fieldDecl),
	}
	for lid, gid := range g.localToGlobal {
		g.globalToLocal[gid] = uint32(lid)
	}
	for lid := uint32(0); lid < g.NumLocal(); lid++ {
		if g.rowStart[lid+1] > g.rowStart[lid] {
			g.roles[lid] |= roleSource
			g.withEdges = append(g.withEdges, lid)
		}
	}
	for _, dst := range g.edgeDst {
		g.roles[dst] |= roleDestination
	}

	g.buildPattern(ctx)
	g.agreeRunID(ctx)

	g.Log.Debug().Msg("Graph ready: masters " + utils.V(g.numMasters) + " mirrors " + utils.V(g.NumLocal()-g.numMasters) +
		" edges " + utils.V(len(g.edgeDst)) + " run " + g.RunID.String())
	return g
}

// Host 0 names the run; every host adopts the name.
func (g *DistGraph) agreeRunID(ctx context.Context) {
	var mine []byte
	if g.hostID == 0 {
		id := uuid.New()
		mine = id[:]
	}
	got, err := g.ep.Broadcast(ctx, 0, mine)
	if err != nil {
		log.Panic().Err(err).Msg("Failed to agree on a run id")
	}
	if g.RunID, err = uuid.FromBytes(got); err != nil {
		log.Panic().Err(err).Msg("Bad run id from host 0")
	}
}

func (g *DistGraph) HostID() uint32 {
	return g.hostID
}

func (g *DistGraph) NumHosts() uint32 {
	return g.numHosts
}

func (g *DistGraph) NumThreads() uint32 {
	return g.pool.Threads()
}

func (g *DistGraph) NumGlobal() uint64 {
	return g.numGlobal
}

func (g *DistGraph) NumMasters() uint32 {
	return g.numMasters
}

func (g *DistGraph) NumLocal() uint32 {
	return uint32(len(g.localToGlobal))
}

func (g *DistGraph) NumEdges() uint64 {
	return uint64(len(g.edgeDst))
}

func (g *DistGraph) Endpoint() *comm.Endpoint {
	return g.ep
}

// Blocks until every host reaches the barrier.
func (g *DistGraph) Barrier(ctx context.Context) {
	if err := g.ep.Barrier(ctx); err != nil {
		log.Panic().Err(err).Msg("Barrier failed on host " + utils.V(g.hostID))
	}
}
