// Package stats collects named per-thread observations and renders them on demand.
//
// Loop and category names are interned process wide. Every worker thread appends to its own
// log, so recording never contends across threads.
package stats

import (
	"strconv"
	"sync"
	"unique"
)

type Symbol = unique.Handle[string]

func Intern(name string) Symbol {
	return unique.Make(name)
}

// A Value is one observation: Int, Float or Str.
type Value interface {
	String() string
	kind() string
}

type Int int64
type Float float64
type Str string

func (v Int) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }
func (v Str) String() string   { return string(v) }

func (Int) kind() string   { return "INT" }
func (Float) kind() string { return "FP" }
func (Str) kind() string   { return "STR" }

type record struct {
	loop     Symbol
	category Symbol
	instance uint32
	value    Value
}

const cacheLine = 64

type threadLog struct {
	mu      sync.Mutex
	records []record
	_       [cacheLine - 32]byte
}

type Manager struct {
	threads []threadLog

	mu        sync.Mutex
	instances map[Symbol]uint32 // Current instance of each loop.
	order     []Symbol          // Loops in first use order.
}

func NewManager(threads uint32) *Manager {
	return &Manager{
		threads:   make([]threadLog, threads),
		instances: make(map[Symbol]uint32),
	}
}

func (m *Manager) Threads() uint32 {
	return uint32(len(m.threads))
}

// Starts a new instance of loop: observations recorded from now on belong to it.
// The first instance of a loop is 0.
func (m *Manager) BeginLoop(loop string) uint32 {
	sym := Intern(loop)
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sym]
	if !ok {
		m.order = append(m.order, sym)
	} else {
		inst++
	}
	m.instances[sym] = inst
	return inst
}

func (m *Manager) instance(sym Symbol) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sym]
	if !ok {
		m.instances[sym] = 0
		m.order = append(m.order, sym)
	}
	return inst
}

// Records an observation from thread tidx for the current instance of loop.
func (m *Manager) Add(tidx uint32, loop string, category string, v Value) {
	if m == nil {
		return
	}
	sym := Intern(loop)
	r := record{loop: sym, category: Intern(category), instance: m.instance(sym), value: v}
	t := &m.threads[tidx%uint32(len(m.threads))]
	t.mu.Lock()
	t.records = append(t.records, r)
	t.mu.Unlock()
}

// Snapshot of all records of one thread.
func (m *Manager) threadRecords(tidx int) []record {
	t := &m.threads[tidx]
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]record(nil), t.records...)
}

// Drops all records; loop instance counters keep counting.
func (m *Manager) Reset() {
	for i := range m.threads {
		t := &m.threads[i]
		t.mu.Lock()
		t.records = t.records[:0]
		t.mu.Unlock()
	}
}
