package stats

import (
	"bufio"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternIsCanonical(t *testing.T) {
	a := Intern(strings.Repeat("x", 3))
	b := Intern("xxx")
	assert.Equal(t, a, b)
	assert.Equal(t, "xxx", a.Value())
}

func TestLoopInstances(t *testing.T) {
	m := NewManager(2)
	assert.EqualValues(t, 0, m.BeginLoop("SSSP"))
	assert.EqualValues(t, 1, m.BeginLoop("SSSP"))
	assert.EqualValues(t, 0, m.BeginLoop("BC"))
	assert.EqualValues(t, 2, m.BeginLoop("SSSP"))
}

func TestTableAndSummary(t *testing.T) {
	m := NewManager(2)
	m.BeginLoop("SSSP")
	m.Add(0, "SSSP", "Iterations", Int(3))
	m.Add(1, "SSSP", "Work", Int(4))
	m.Add(0, "SSSP", "Work", Int(6))
	m.Add(1, "SSSP", "Work", Int(1))
	m.BeginLoop("SSSP")
	m.Add(0, "SSSP", "Work", Int(2))
	m.Add(1, "BC", "Name", Str("bc_pull"))
	m.Add(0, "BC", "Time", Float(0.5))

	var table strings.Builder
	require.NoError(t, m.PrintTable(&table))
	assert.Equal(t, strings.Join([]string{
		"LOOP,INSTANCE,CATEGORY,THREAD,VAL",
		"SSSP,0,Iterations,0,3",
		"SSSP,0,Work,0,6",
		"SSSP,0,Work,1,5",
		"SSSP,1,Work,0,2",
		"BC,0,Time,0,0.5",
		"BC,0,Name,1,bc_pull",
	}, "\n")+"\n", table.String())

	var summary strings.Builder
	require.NoError(t, m.PrintSummary(&summary))
	assert.Equal(t, strings.Join([]string{
		"STATTYPE,LOOP,INSTANCE,CATEGORY,n,sum,T0,T1",
		"INT,SSSP,0,Iterations,1,3,3,0",
		"INT,SSSP,0,Work,3,11,6,5",
		"INT,SSSP,1,Work,1,2,2,0",
		"FP,BC,0,Time,1,0.5,0.5,0",
	}, "\n")+"\n", summary.String())
}

func TestRecordsAreJSON(t *testing.T) {
	m := NewManager(3)
	var wg sync.WaitGroup
	for tidx := uint32(0); tidx < 3; tidx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Add(tidx, "Loop", "Count", Int(1))
			}
		}()
	}
	wg.Wait()

	var out strings.Builder
	m.PrintRecords(&out)
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	lines := 0
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Equal(t, "Loop", rec["loop"])
		assert.Equal(t, "INT", rec["type"])
		assert.EqualValues(t, 1, rec["value"])
		lines++
	}
	assert.Equal(t, 300, lines)

	m.Reset()
	var empty strings.Builder
	require.NoError(t, m.PrintTable(&empty))
	assert.Equal(t, "LOOP,INSTANCE,CATEGORY,THREAD,VAL\n", empty.String())
}

func TestNilManagerIgnoresObservations(t *testing.T) {
	var m *Manager
	m.Add(0, "Loop", "Count", Int(1))
}
