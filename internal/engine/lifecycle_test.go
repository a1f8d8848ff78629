package engine

import (
	"testing"

	"github.com/nvandessel/fipsim/internal/models"
)

// findBinding returns the view of id across all frames of snap.
func findBinding(snap models.Snapshot, id models.BindingID) (models.BindingView, bool) {
	for _, f := range snap.Frames {
		for _, b := range f.Bindings {
			if b.ID == id {
				return b, true
			}
		}
	}
	return models.BindingView{}, false
}

func newTestEngine() (*Engine, *Recorder) {
	rec := &Recorder{}
	return New(rec), rec
}

func TestEngine_CommitEmitsSnapshot(t *testing.T) {
	e, rec := newTestEngine()
	c := e.Allocate(1, models.NoCell)
	e.Bind("x", models.CellRef(c), false)
	e.Commit()

	if len(rec.Snapshots) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(rec.Snapshots))
	}
	snap := rec.Snapshots[0]
	cv, ok := snap.Cell(c)
	if !ok {
		t.Fatalf("cell %v missing from snapshot", c)
	}
	if cv.Tag != models.CellNew {
		t.Errorf("tag = %q, want %q", cv.Tag, models.CellNew)
	}
	if cv.RefCount != 1 {
		t.Errorf("refcount = %d, want 1", cv.RefCount)
	}

	e.Commit()
	cv, _ = rec.Snapshots[1].Cell(c)
	if cv.Tag != models.CellNormal {
		t.Errorf("second snapshot tag = %q, want normal", cv.Tag)
	}
}

func TestEngine_StagedRemovalTakesTwoFrames(t *testing.T) {
	e, rec := newTestEngine()
	id := e.Bind("v", models.Value(1), false)
	e.Commit()
	e.QueueRemoval(id)
	e.QueueRemoval(id) // idempotent
	before := len(rec.Snapshots)
	e.Commit()

	got := rec.Snapshots[before:]
	if len(got) != 2 {
		t.Fatalf("got %d snapshots from commit, want 2", len(got))
	}
	bv, ok := findBinding(got[0], id)
	if !ok || bv.Tag != models.BindingPendingRemoval {
		t.Errorf("first frame: binding = %+v, %v; want pending-removal", bv, ok)
	}
	if _, ok := findBinding(got[1], id); ok {
		t.Error("second frame still shows removed binding")
	}
}

func TestEngine_TransientRetiresAfterOneCommit(t *testing.T) {
	e, rec := newTestEngine()
	id := e.Bind("tmp", models.Value(4), true)
	e.Commit()

	if len(rec.Snapshots) != 3 {
		t.Fatalf("got %d snapshots, want 3 (shown, pending, gone)", len(rec.Snapshots))
	}
	if bv, ok := findBinding(rec.Snapshots[0], id); !ok || bv.Tag != models.BindingNormal {
		t.Errorf("frame 0: %+v, %v; want normal", bv, ok)
	}
	if bv, ok := findBinding(rec.Snapshots[1], id); !ok || bv.Tag != models.BindingPendingRemoval {
		t.Errorf("frame 1: %+v, %v; want pending-removal", bv, ok)
	}
	if _, ok := findBinding(rec.Snapshots[2], id); ok {
		t.Error("frame 2 still shows transient binding")
	}
}

func TestEngine_CascadeFreesOneCellPerSnapshot(t *testing.T) {
	e, rec := newTestEngine()
	c3 := e.Allocate(3, models.NoCell)
	c2 := e.Allocate(2, c3)
	c1 := e.Allocate(1, c2)
	id := e.Bind("list", models.CellRef(c1), false)
	e.Commit()

	e.QueueRemoval(id)
	start := len(rec.Snapshots)
	e.Commit()

	var doomed []models.CellID
	var live []int
	for _, snap := range rec.Snapshots[start:] {
		live = append(live, len(snap.Cells))
		for _, c := range snap.Cells {
			if c.Tag == models.CellPendingDealloc {
				doomed = append(doomed, c.ID)
			}
		}
	}

	want := []models.CellID{c1, c2, c3}
	if len(doomed) != len(want) {
		t.Fatalf("cascade snapshots flagged %v, want %v", doomed, want)
	}
	for i := range want {
		if doomed[i] != want[i] {
			t.Errorf("cascade[%d] = %v, want %v", i, doomed[i], want[i])
		}
	}
	// pending, gone, then one dealloc frame per cell, then the empty heap.
	wantLive := []int{3, 3, 3, 2, 1, 0}
	if len(live) != len(wantLive) {
		t.Fatalf("live cells per frame = %v, want %v", live, wantLive)
	}
	for i := range wantLive {
		if live[i] != wantLive[i] {
			t.Errorf("live cells per frame = %v, want %v", live, wantLive)
			break
		}
	}
	if e.Stats().Deallocations != 3 {
		t.Errorf("Deallocations = %d, want 3", e.Stats().Deallocations)
	}
}

func TestEngine_PopScopeDefersCascade(t *testing.T) {
	e, rec := newTestEngine()
	e.PushScope("f")
	c := e.Allocate(1, models.NoCell)
	e.Bind("acc", models.CellRef(c), false)
	e.Commit()

	e.PopScope()
	last, _ := rec.Last()
	if last.Step != StepPop {
		t.Fatalf("last step = %q, want %q", last.Step, StepPop)
	}
	if !e.Heap().Has(c) {
		t.Fatal("pop freed a cell before the caller could bind it")
	}

	e.Bind("return", models.CellRef(c), false)
	e.Commit()
	if !e.Heap().Has(c) {
		t.Error("cell freed although the caller holds it")
	}
	if e.Stats().Pushes != 1 || e.Stats().Pops != 1 {
		t.Errorf("pushes/pops = %d/%d, want 1/1", e.Stats().Pushes, e.Stats().Pops)
	}
}

func TestEngine_PopWithoutHolderFreesAtNextCommit(t *testing.T) {
	e, _ := newTestEngine()
	e.PushScope("f")
	c := e.Allocate(1, models.NoCell)
	e.Bind("acc", models.CellRef(c), false)
	e.PopScope()
	e.Commit()
	if e.Heap().Has(c) {
		t.Error("unreferenced cell survived a commit")
	}
}

func TestEngine_BindingEdgesOnlyForTopFrame(t *testing.T) {
	e, rec := newTestEngine()
	c := e.Allocate(1, models.NoCell)
	outer := e.Bind("outer", models.CellRef(c), false)
	e.PushScope("f")
	inner := e.Bind("inner", models.CellRef(c), false)
	e.Commit()

	snap := rec.Snapshots[0]
	var from []string
	for _, edge := range snap.Edges {
		if edge.Kind == models.EdgeBinding {
			from = append(from, edge.From)
		}
	}
	if len(from) != 1 || from[0] != inner.String() {
		t.Errorf("binding edges from %v, want only %s (not %s)", from, inner, outer)
	}
	cv, _ := snap.Cell(c)
	if cv.RefCount != 2 {
		t.Errorf("refcount = %d, want 2 (outer frames still count)", cv.RefCount)
	}
}

func TestEngine_ReuseTagsMutated(t *testing.T) {
	e, rec := newTestEngine()
	c := e.Allocate(1, models.NoCell)
	id := e.Bind("list", models.CellRef(c), false)
	e.Commit()

	e.Reuse(c, 5, models.NoCell)
	e.Rebind(id, models.CellRef(c))
	e.Commit()

	cv, _ := rec.Snapshots[len(rec.Snapshots)-1].Cell(c)
	if cv.Tag != models.CellMutated || cv.Value != 5 {
		t.Errorf("reused cell = %+v, want mutated value 5", cv)
	}
	if e.Stats().Reuses != 1 || e.Stats().Allocations != 1 {
		t.Errorf("stats = %+v", e.Stats())
	}
}

func TestEngine_SnapshotsAreImmutable(t *testing.T) {
	e, rec := newTestEngine()
	c := e.Allocate(1, models.NoCell)
	id := e.Bind("x", models.CellRef(c), false)
	e.Commit()
	first := rec.Snapshots[0].Clone()

	e.Reuse(c, 99, models.NoCell)
	e.Rebind(id, models.Value(3))
	e.Bind("y", models.Value(4), false)
	e.Commit()

	got := rec.Snapshots[0]
	cv, _ := got.Cell(c)
	if cv.Value != 1 {
		t.Errorf("emitted cell value changed to %d", cv.Value)
	}
	if len(got.Frames[0].Bindings) != len(first.Frames[0].Bindings) {
		t.Errorf("emitted frame grew from %d to %d bindings", len(first.Frames[0].Bindings), len(got.Frames[0].Bindings))
	}
	bv, _ := findBinding(got, id)
	if bv.Target != models.CellRef(c) {
		t.Errorf("emitted binding target changed to %v", bv.Target)
	}
}

func TestEngine_Violations(t *testing.T) {
	tests := []struct {
		name string
		op   string
		fn   func(e *Engine)
	}{
		{"queue unknown binding", "queue removal", func(e *Engine) { e.QueueRemoval(7) }},
		{"bind dead cell", "bind", func(e *Engine) { e.Bind("x", models.CellRef(7), false) }},
		{"rebind dead cell", "rebind", func(e *Engine) {
			id := e.Bind("x", models.Empty(), false)
			e.Rebind(id, models.CellRef(7))
		}},
		{"pop root", "pop scope", func(e *Engine) { e.PopScope() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine()
			expectViolation(t, tt.op, func() { tt.fn(e) })
		})
	}
}

type countingObserver map[EventKind]int

func (c countingObserver) Observe(e Event) { c[e.Kind]++ }

func TestEngine_ObserverSeesEvents(t *testing.T) {
	obs := countingObserver{}
	e := New(nil, WithObserver(Observers{obs, nil}))
	c := e.Allocate(1, models.NoCell)
	id := e.Bind("x", models.CellRef(c), false)
	e.Commit()
	e.QueueRemoval(id)
	e.Commit()

	if obs[EventAllocate] != 1 || obs[EventBind] != 1 || obs[EventRemove] != 1 || obs[EventDeallocate] != 1 {
		t.Errorf("events = %v", obs)
	}
	if obs[EventSnapshot] != e.Stats().Snapshots {
		t.Errorf("snapshot events %d != stats %d", obs[EventSnapshot], e.Stats().Snapshots)
	}
}

func TestEngine_SeedIsInputNotAllocation(t *testing.T) {
	seen := countingObserver{}
	e := New(nil, WithObserver(seen))

	tail := e.Seed(2, models.NoCell)
	head := e.Seed(1, tail)
	e.Bind("list", models.CellRef(head), false)
	e.Allocate(3, models.NoCell)

	st := e.Stats()
	if st.InputCells != 2 || st.Allocations != 1 {
		t.Errorf("stats = %+v, want 2 input cells and 1 allocation", st)
	}
	if st.PeakCells != 3 {
		t.Errorf("peak cells = %d, want 3 (input cells are live)", st.PeakCells)
	}
	if seen[EventSeed] != 2 || seen[EventAllocate] != 1 {
		t.Errorf("events = %v, want 2 seed and 1 allocate", seen)
	}
	if v, next := e.Cell(head); v != 1 || next != tail {
		t.Errorf("head = (%d, %v), want (1, %v)", v, next, tail)
	}
}

func TestEngine_FreeRequiresNoReferences(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *Engine) models.CellID
	}{
		{"bound cell", func(e *Engine) models.CellID {
			c := e.Allocate(1, models.NoCell)
			e.Bind("x", models.CellRef(c), false)
			return c
		}},
		{"linked cell", func(e *Engine) models.CellID {
			tail := e.Allocate(1, models.NoCell)
			head := e.Allocate(2, tail)
			e.Bind("list", models.CellRef(head), false)
			return tail
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(nil)
			id := tt.setup(e)
			expectViolation(t, "deallocate", func() { e.free(id) })
			if !e.heap.Has(id) {
				t.Errorf("%v was removed despite the violation", id)
			}
		})
	}

	e := New(nil)
	c := e.Allocate(1, models.NoCell)
	e.free(c)
	if e.heap.Has(c) || e.Stats().Deallocations != 1 {
		t.Errorf("unreferenced cell not freed: stats %+v", e.Stats())
	}
}
