package stats

import (
	"bufio"
	"cmp"
	"io"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
)

type key struct {
	loop     Symbol
	category Symbol
	instance uint32
}

type cell struct {
	kind    string
	n       []int   // Observations per thread.
	ints    []int64 // Per thread totals, for INT.
	floats  []float64
	strs    []string // Last value per thread, for STR.
	present []bool
	seen    int // First appearance, for stable category order.
}

type table struct {
	keys  []key
	cells map[key]*cell
}

func (m *Manager) collect() table {
	T := len(m.threads)
	tb := table{cells: make(map[key]*cell)}
	seen := 0
	for t := 0; t < T; t++ {
		for _, r := range m.threadRecords(t) {
			k := key{r.loop, r.category, r.instance}
			c, ok := tb.cells[k]
			if !ok {
				c = &cell{
					kind: r.value.kind(), n: make([]int, T), ints: make([]int64, T),
					floats: make([]float64, T), strs: make([]string, T), present: make([]bool, T), seen: seen,
				}
				seen++
				tb.cells[k] = c
				tb.keys = append(tb.keys, k)
			}
			c.n[t]++
			c.present[t] = true
			switch v := r.value.(type) {
			case Int:
				c.ints[t] += int64(v)
			case Float:
				c.floats[t] += float64(v)
			case Str:
				c.strs[t] = string(v)
			}
		}
	}

	m.mu.Lock()
	loopRank := make(map[Symbol]int, len(m.order))
	for i, l := range m.order {
		loopRank[l] = i
	}
	m.mu.Unlock()
	slices.SortStableFunc(tb.keys, func(a, b key) int {
		return cmp.Or(
			cmp.Compare(loopRank[a.loop], loopRank[b.loop]),
			cmp.Compare(a.instance, b.instance),
			cmp.Compare(tb.cells[a].seen, tb.cells[b].seen),
		)
	})
	return tb
}

func (c *cell) threadValue(t int) string {
	switch c.kind {
	case "INT":
		return strconv.FormatInt(c.ints[t], 10)
	case "FP":
		return strconv.FormatFloat(c.floats[t], 'f', -1, 64)
	}
	return c.strs[t]
}

// One row per (loop, instance, category, thread).
func (m *Manager) PrintTable(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("LOOP,INSTANCE,CATEGORY,THREAD,VAL\n")
	tb := m.collect()
	for _, k := range tb.keys {
		c := tb.cells[k]
		for t := range c.present {
			if !c.present[t] {
				continue
			}
			bw.WriteString(k.loop.Value() + "," + strconv.FormatUint(uint64(k.instance), 10) + "," +
				k.category.Value() + "," + strconv.Itoa(t) + "," + c.threadValue(t) + "\n")
		}
	}
	return bw.Flush()
}

// One row per numeric (loop, instance, category): observation count, total, then per thread totals.
func (m *Manager) PrintSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("STATTYPE,LOOP,INSTANCE,CATEGORY,n,sum")
	for t := range m.threads {
		bw.WriteString(",T" + strconv.Itoa(t))
	}
	bw.WriteString("\n")
	tb := m.collect()
	for _, k := range tb.keys {
		c := tb.cells[k]
		if c.kind == "STR" {
			continue
		}
		n := 0
		var isum int64
		var fsum float64
		for t := range c.n {
			n += c.n[t]
			isum += c.ints[t]
			fsum += c.floats[t]
		}
		sum := strconv.FormatInt(isum, 10)
		if c.kind == "FP" {
			sum = strconv.FormatFloat(fsum, 'f', -1, 64)
		}
		bw.WriteString(c.kind + "," + k.loop.Value() + "," + strconv.FormatUint(uint64(k.instance), 10) + "," +
			k.category.Value() + "," + strconv.Itoa(n) + "," + sum)
		for t := range c.n {
			bw.WriteString("," + c.threadValue(t))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// Streams every raw observation as one JSON record per line.
func (m *Manager) PrintRecords(w io.Writer) {
	out := zerolog.New(w)
	for t := range m.threads {
		for _, r := range m.threadRecords(t) {
			ev := out.Log().
				Str("loop", r.loop.Value()).
				Uint32("instance", r.instance).
				Str("category", r.category.Value()).
				Int("thread", t).
				Str("type", r.value.kind())
			switch v := r.value.(type) {
			case Int:
				ev = ev.Int64("value", int64(v))
			case Float:
				ev = ev.Float64("value", float64(v))
			case Str:
				ev = ev.Str("value", string(v))
			}
			ev.Send()
		}
	}
}
