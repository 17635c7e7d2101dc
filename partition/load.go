package partition

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/dgsync/graph"
	"github.com/ScottSallinen/dgsync/utils"
)

type Edge struct {
	Src, Dst graph.GlobalID
	Weight   uint32
}

// A whole graph as read from disk. Vertex ids are dense: [0, NumGlobal).
type EdgeList struct {
	NumGlobal uint64
	Edges     []Edge
	Weighted  bool
}

type LoadOptions struct {
	Undirected bool // Add the reverse of every edge.
	Transpose  bool // Swap source and destination.
	Weighted   bool // Third column is an integer weight; otherwise weights are 1.
}

func LoadOptionsFrom(o graph.Options) LoadOptions {
	return LoadOptions{Undirected: o.Undirected, Transpose: o.Transpose, Weighted: o.Weighted}
}

// Reads a text edge list: one "src dst [weight]" per line. Lines starting with # and blank
// lines are skipped.
func LoadEdgeList(path string, opts LoadOptions) (EdgeList, error) {
	start := time.Now()
	file := utils.OpenFile(path)
	defer file.Close()

	el := EdgeList{Weighted: opts.Weighted}
	buf := make([]byte, 1<<16)
	scanner := utils.FastFileLines{Buf: buf}
	var fields [8]string
	maxID := int64(-1)

	for line := 1; ; line++ {
		b := scanner.Scan(file)
		if b == nil {
			break
		}
		if len(b) > 0 && b[0] == '#' {
			continue
		}
		fields = [8]string{}
		utils.FastFields(fields[:], b)
		if fields[0] == "" {
			continue
		}
		if fields[1] == "" {
			return EdgeList{}, fmt.Errorf("%s:%d: expected \"src dst [weight]\"", path, line)
		}

		src, err1 := strconv.ParseUint(fields[0], 10, 64)
		dst, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err := errors.Join(err1, err2); err != nil {
			return EdgeList{}, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		weight := uint64(1)
		if opts.Weighted && fields[2] != "" {
			if weight, err1 = strconv.ParseUint(fields[2], 10, 32); err1 != nil {
				return EdgeList{}, fmt.Errorf("%s:%d: %w", path, line, err1)
			}
		}
		if opts.Transpose {
			src, dst = dst, src
		}
		el.Edges = append(el.Edges, Edge{Src: src, Dst: dst, Weight: uint32(weight)})
		if opts.Undirected && src != dst {
			el.Edges = append(el.Edges, Edge{Src: dst, Dst: src, Weight: uint32(weight)})
		}
		maxID = max(maxID, int64(src), int64(dst))
	}
	el.NumGlobal = uint64(maxID + 1)

	log.Info().Msg("Loaded " + path + ": vertices " + utils.V(el.NumGlobal) + " edges " + utils.V(len(el.Edges)) +
		" in (ms) " + utils.V(time.Since(start).Milliseconds()))
	return el, nil
}
