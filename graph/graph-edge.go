package graph

// Edge index range [begin, end) of a local vertex, in compressed adjacency order.
func (g *DistGraph) Edges(lid uint32) (begin, end uint64) {
	return g.rowStart[lid], g.rowStart[lid+1]
}

func (g *DistGraph) Degree(lid uint32) uint64 {
	return g.rowStart[lid+1] - g.rowStart[lid]
}

// Local id of the edge destination.
func (g *DistGraph) EdgeDst(e uint64) uint32 {
	return g.edgeDst[e]
}

// Weight of the edge; 1 if the graph is unweighted.
func (g *DistGraph) EdgeWeight(e uint64) uint32 {
	if g.edgeWeight == nil {
		return 1
	}
	return g.edgeWeight[e]
}

// Destinations of all local out edges of lid.
func (g *DistGraph) OutNeighbours(lid uint32) []uint32 {
	return g.edgeDst[g.rowStart[lid]:g.rowStart[lid+1]]
}
