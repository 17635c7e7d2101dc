package graph

import (
	"bufio"
	"cmp"
	"io"
	"slices"

	"github.com/ScottSallinen/dgsync/enforce"
	"github.com/ScottSallinen/dgsync/utils"
)

// Writes "gid value" for every master of this host, ordered by global id.
func WriteMasters[T utils.Number](f *Field[T], w io.Writer, format func(T) string) error {
	g := f.g
	order := make([]uint32, g.numMasters)
	for i := range order {
		order[i] = uint32(i)
	}
	slices.SortFunc(order, func(a, b uint32) int {
		return cmp.Compare(g.localToGlobal[a], g.localToGlobal[b])
	})

	bw := bufio.NewWriter(w)
	for _, lid := range order {
		if _, err := bw.WriteString(utils.V(g.localToGlobal[lid]) + " " + format(f.Values[lid]) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteMasters to <prefix>.<host>.
func WriteMastersFile[T utils.Number](f *Field[T], prefix string, format func(T) string) string {
	path := prefix + "." + utils.V(f.g.hostID)
	file := utils.CreateFile(path)
	defer file.Close()
	enforce.ENFORCE(WriteMasters(f, file, format))
	return path
}
