package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ScottSallinen/dgsync/utils"
)

// Which local vertices correspond to which vertices on every other host.
// mirrorNodes[h][i] on this host and masterNodes[me][i] on host h are the same global vertex.
type commPattern struct {
	mirrorNodes [][]uint32 // By owning host: local mirrors, ascending.
	masterNodes [][]uint32 // By mirroring host: local masters, in that host's mirror order.
	masterRoles [][]uint8  // Role of the mirror on the mirroring host.

	// Location filtered copies. Both ends of a pair derive identical lists from the mirror roles.
	mirrors [numLocations][][]uint32
	masters [numLocations][][]uint32
}

func (g *DistGraph) buildPattern(ctx context.Context) {
	n := g.numHosts
	p := &g.pattern
	p.mirrorNodes = make([][]uint32, n)
	p.masterNodes = make([][]uint32, n)
	p.masterRoles = make([][]uint8, n)

	for lid := g.numMasters; lid < g.NumLocal(); lid++ {
		h := g.owners.Owner(g.localToGlobal[lid])
		p.mirrorNodes[h] = append(p.mirrorNodes[h], lid)
	}

	// Tell each owner which of its vertices we mirror, and how we use them.
	sends := make(map[uint32][]byte, n)
	var peers []uint32
	for h := uint32(0); h < n; h++ {
		if h == g.hostID {
			continue
		}
		peers = append(peers, h)
		mirrors := p.mirrorNodes[h]
		gids := make([]GlobalID, len(mirrors))
		roles := make([]uint8, len(mirrors))
		for i, lid := range mirrors {
			gids[i] = g.localToGlobal[lid]
			roles[i] = g.roles[lid]
		}
		sends[h] = appendMirrorList(nil, gids, roles)
	}
	recvd, err := g.ep.Exchange(ctx, sends, peers)
	if err != nil {
		log.Panic().Err(err).Msg("Communication pattern exchange failed")
	}

	for _, h := range peers {
		gids, roles, err := parseMirrorList(recvd[h])
		if err != nil {
			log.Panic().Err(err).Msg("Malformed mirror list from host " + utils.V(h))
		}
		masters := make([]uint32, len(gids))
		for i, gid := range gids {
			lid, found := g.globalToLocal[gid]
			if !found || lid >= g.numMasters {
				log.Panic().Msg("Host " + utils.V(h) + " mirrors global " + utils.V(gid) + ", which host " +
					utils.V(g.hostID) + " does not master")
			}
			masters[i] = lid
		}
		p.masterNodes[h] = masters
		p.masterRoles[h] = roles
	}

	for loc := Any; loc < numLocations; loc++ {
		p.mirrors[loc] = make([][]uint32, n)
		p.masters[loc] = make([][]uint32, n)
		for _, h := range peers {
			for _, lid := range p.mirrorNodes[h] {
				if loc.matches(g.roles[lid]) {
					p.mirrors[loc][h] = append(p.mirrors[loc][h], lid)
				}
			}
			for i, lid := range p.masterNodes[h] {
				if loc.matches(p.masterRoles[h][i]) {
					p.masters[loc][h] = append(p.masters[loc][h], lid)
				}
			}
		}
	}
}

// Local mirrors owned by host h.
func (g *DistGraph) MirrorNodes(h uint32) []uint32 {
	return g.pattern.mirrorNodes[h]
}

// Local masters that host h mirrors, in host h's mirror order.
func (g *DistGraph) MirroredMasters(h uint32) []uint32 {
	return g.pattern.masterNodes[h]
}

// Field numbers of the MirrorList message of mirrors.proto.
const (
	mirrorGIDs  protowire.Number = 1
	mirrorRoles protowire.Number = 2
)

var errMirrorList = errors.New("mirror list")

func appendMirrorList(b []byte, gids []GlobalID, roles []uint8) []byte {
	if len(gids) == 0 {
		return b
	}
	var packed []byte
	for _, gid := range gids {
		packed = protowire.AppendVarint(packed, gid)
	}
	b = protowire.AppendTag(b, mirrorGIDs, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	b = protowire.AppendTag(b, mirrorRoles, protowire.BytesType)
	return protowire.AppendBytes(b, roles)
}

func parseMirrorList(b []byte) (gids []GlobalID, roles []uint8, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, fmt.Errorf("%w: %w", errMirrorList, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == mirrorGIDs && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			for len(packed) > 0 && n >= 0 {
				gid, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, nil, fmt.Errorf("%w: global id: %w", errMirrorList, protowire.ParseError(m))
				}
				gids = append(gids, gid)
				packed = packed[m:]
			}
		case num == mirrorGIDs && typ == protowire.VarintType:
			// Unpacked encoding of the repeated field.
			var gid uint64
			gid, n = protowire.ConsumeVarint(b)
			gids = append(gids, gid)
		case num == mirrorRoles && typ == protowire.BytesType:
			var rs []byte
			rs, n = protowire.ConsumeBytes(b)
			roles = append(roles, rs...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, nil, fmt.Errorf("%w: field %d: %w", errMirrorList, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if len(gids) != len(roles) {
		return nil, nil, fmt.Errorf("%w: %d global ids, %d roles", errMirrorList, len(gids), len(roles))
	}
	return gids, roles, nil
}
