package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/reversal"
)

func TestCollector_CountsHeapOperations(t *testing.T) {
	c := NewCollector()

	if _, err := reversal.Simulate([]int{1, 2, 3}, true, nil, engine.WithObserver(c.ForDiscipline("fip"))); err != nil {
		t.Fatalf("Simulate fip: %v", err)
	}
	if _, err := reversal.Simulate([]int{1, 2, 3}, false, nil, engine.WithObserver(c.ForDiscipline("rc"))); err != nil {
		t.Fatalf("Simulate rc: %v", err)
	}

	tests := []struct {
		discipline, op string
		want           float64
	}{
		{"fip", "allocate", 0},
		{"fip", "reuse", 3},
		{"fip", "deallocate", 0},
		{"rc", "allocate", 3},
		{"rc", "reuse", 0},
		{"rc", "deallocate", 3},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.heapOps.WithLabelValues(tt.discipline, tt.op))
		if got != tt.want {
			t.Errorf("heap_operations_total{%s,%s} = %v, want %v", tt.discipline, tt.op, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(c.peakCells.WithLabelValues("fip")); got != 3 {
		t.Errorf("fip peak = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.peakCells.WithLabelValues("rc")); got != 6 {
		t.Errorf("rc peak = %v, want 6", got)
	}
	if got := testutil.ToFloat64(c.liveCells.WithLabelValues("rc")); got != 3 {
		t.Errorf("rc live cells at end = %v, want 3", got)
	}
	if testutil.ToFloat64(c.snapshots.WithLabelValues("fip")) == 0 {
		t.Error("no snapshots counted")
	}
}

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector()
	c.RecordRun("fip", nil)
	c.RecordRun("fip", nil)
	c.RecordRun("rc", errors.New("boom"))

	if got := testutil.ToFloat64(c.runs.WithLabelValues("fip", "ok")); got != 2 {
		t.Errorf("fip ok runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("rc", "aborted")); got != 1 {
		t.Errorf("rc aborted runs = %v, want 1", got)
	}
}

func TestCollector_WriteSummary(t *testing.T) {
	c := NewCollector()
	obs := c.ForDiscipline("fip")
	obs.Observe(engine.Event{Kind: engine.EventAllocate, Cell: 1, LiveCells: 1})
	obs.Observe(engine.Event{Kind: engine.EventSnapshot, Seq: 1})

	var buf bytes.Buffer
	if err := c.WriteSummary(&buf); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`fipsim_heap_operations_total{discipline="fip",op="allocate"} 1`,
		`fipsim_snapshots_total{discipline="fip"} 1`,
		`fipsim_peak_live_cells{discipline="fip"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestCollector_SeedIsNotHeapWork(t *testing.T) {
	c := NewCollector()
	obs := c.ForDiscipline("rc")
	obs.Observe(engine.Event{Kind: engine.EventSeed, Cell: 1, LiveCells: 1})
	obs.Observe(engine.Event{Kind: engine.EventSeed, Cell: 2, LiveCells: 2})

	if got := testutil.ToFloat64(c.heapOps.WithLabelValues("rc", "allocate")); got != 0 {
		t.Errorf("allocate = %v after seeding, want 0", got)
	}
	if got := testutil.ToFloat64(c.heapOps.WithLabelValues("rc", "seed")); got != 0 {
		t.Errorf("seed counted as a heap operation: %v", got)
	}
	if got := testutil.ToFloat64(c.liveCells.WithLabelValues("rc")); got != 2 {
		t.Errorf("live cells = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.peakCells.WithLabelValues("rc")); got != 2 {
		t.Errorf("peak cells = %v, want 2", got)
	}
}
