package simulation

import (
	"slices"
	"testing"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/models"
)

// AssertForest asserts that in every frame each cell has at most one
// predecessor and following next links from any cell terminates.
func AssertForest(t *testing.T, run RunResult) {
	t.Helper()
	for _, snap := range run.Frames {
		cells := cellIDs(snap)
		preds := make(map[models.CellID]int)
		for _, c := range snap.Cells {
			if c.Next == models.NoCell {
				continue
			}
			if _, ok := cells[c.Next]; !ok {
				t.Errorf("AssertForest: %s frame %d: %s links to dead cell %s", run.Discipline, snap.Seq, c.ID, c.Next)
			}
			preds[c.Next]++
			if preds[c.Next] > 1 {
				t.Errorf("AssertForest: %s frame %d: %s has %d predecessors", run.Discipline, snap.Seq, c.Next, preds[c.Next])
			}
		}
		for _, c := range snap.Cells {
			steps := 0
			for id := c.ID; id != models.NoCell; id = cells[id].Next {
				steps++
				if steps > len(cells) {
					t.Errorf("AssertForest: %s frame %d: cycle through %s", run.Discipline, snap.Seq, c.ID)
					break
				}
			}
		}
	}
}

// AssertRefCounts asserts that every reported reference count equals the
// number of incoming next links plus bindings targeting the cell.
func AssertRefCounts(t *testing.T, run RunResult) {
	t.Helper()
	for _, snap := range run.Frames {
		want := expectedRefCounts(snap)
		for _, c := range snap.Cells {
			if c.RefCount != want[c.ID] {
				t.Errorf("AssertRefCounts: %s frame %d: %s refcount %d, derived %d", run.Discipline, snap.Seq, c.ID, c.RefCount, want[c.ID])
			}
		}
	}
}

// AssertCascadeOneCellPerFrame asserts that every dealloc frame flags exactly
// one unreferenced cell, that only dealloc frames flag cells, and that each
// cell leaves the heap only right after being flagged.
func AssertCascadeOneCellPerFrame(t *testing.T, run RunResult) {
	t.Helper()
	for i, snap := range run.Frames {
		var doomed []models.CellView
		for _, c := range snap.Cells {
			if c.Tag == models.CellPendingDealloc {
				doomed = append(doomed, c)
			}
		}
		if snap.Step == engine.StepDealloc {
			if len(doomed) != 1 {
				t.Errorf("AssertCascadeOneCellPerFrame: %s frame %d flags %d cells", run.Discipline, snap.Seq, len(doomed))
			} else if doomed[0].RefCount != 0 {
				t.Errorf("AssertCascadeOneCellPerFrame: %s frame %d flags %s with refcount %d", run.Discipline, snap.Seq, doomed[0].ID, doomed[0].RefCount)
			}
		} else if len(doomed) != 0 {
			t.Errorf("AssertCascadeOneCellPerFrame: %s %s frame %d flags %d cells", run.Discipline, snap.Step, snap.Seq, len(doomed))
		}

		if i == 0 {
			continue
		}
		prev := cellIDs(run.Frames[i-1])
		now := cellIDs(snap)
		for id, c := range prev {
			if _, alive := now[id]; !alive && c.Tag != models.CellPendingDealloc {
				t.Errorf("AssertCascadeOneCellPerFrame: %s frame %d: %s vanished without being flagged", run.Discipline, snap.Seq, id)
			}
		}
	}
}

// AssertStagedRemoval asserts that a binding only disappears after a frame
// in which it was shown as pending removal, and that frame numbers are
// contiguous.
func AssertStagedRemoval(t *testing.T, run RunResult) {
	t.Helper()
	for i, snap := range run.Frames {
		if snap.Seq != i+1 {
			t.Errorf("AssertStagedRemoval: %s frame at index %d has seq %d", run.Discipline, i, snap.Seq)
		}
		if i == 0 {
			continue
		}
		now := bindingIDs(snap)
		for id, b := range bindingIDs(run.Frames[i-1]) {
			if _, alive := now[id]; !alive && b.Tag != models.BindingPendingRemoval {
				t.Errorf("AssertStagedRemoval: %s frame %d: %s (%s) removed without a pending frame", run.Discipline, snap.Seq, id, b.Label)
			}
		}
	}
}

// AssertScopeBalance asserts that every pushed scope was popped and the run
// ends with only the root frame holding the result.
func AssertScopeBalance(t *testing.T, run RunResult) {
	t.Helper()
	st := run.Outcome.Stats
	if st.Pushes != st.Pops {
		t.Errorf("AssertScopeBalance: %s: %d pushes, %d pops", run.Discipline, st.Pushes, st.Pops)
	}
	last := run.Last()
	if len(last.Frames) != 1 || last.Frames[0].Label != constants.RootFrameLabel {
		t.Fatalf("AssertScopeBalance: %s: final frames = %+v", run.Discipline, last.Frames)
	}
	var labels []string
	for _, b := range last.Frames[0].Bindings {
		labels = append(labels, b.Label)
	}
	if !slices.Equal(labels, []string{constants.LabelResult}) {
		t.Errorf("AssertScopeBalance: %s: root bindings %v, want [%s]", run.Discipline, labels, constants.LabelResult)
	}
}

// AssertNoLeaks asserts that the final heap holds exactly the result chain.
func AssertNoLeaks(t *testing.T, run RunResult) {
	t.Helper()
	last := run.Last()
	result, ok := FindBinding(last, constants.LabelResult)
	if !ok {
		t.Fatalf("AssertNoLeaks: %s: no result binding", run.Discipline)
	}
	reachable := make(map[models.CellID]bool)
	cells := cellIDs(last)
	for id := result.Target.CellOf(); id != models.NoCell; id = cells[id].Next {
		reachable[id] = true
	}
	for _, c := range last.Cells {
		if !reachable[c.ID] {
			t.Errorf("AssertNoLeaks: %s: %s (value %d) is live but unreachable from result", run.Discipline, c.ID, c.Value)
		}
	}
}

// AssertSnapshotsImmutable asserts that no frame changed after emission.
func AssertSnapshotsImmutable(t *testing.T, run RunResult) {
	t.Helper()
	if len(run.Fingerprints) != len(run.Frames) {
		t.Fatalf("AssertSnapshotsImmutable: %s: %d fingerprints for %d frames", run.Discipline, len(run.Fingerprints), len(run.Frames))
	}
	for i, snap := range run.Frames {
		if got := Fingerprint(snap); got != run.Fingerprints[i] {
			t.Errorf("AssertSnapshotsImmutable: %s frame %d changed after emission", run.Discipline, snap.Seq)
		}
	}
}

// AssertFIPBounded asserts that the FIP run allocated nothing beyond the
// input and reused every input cell, while the RC run allocated one cell per
// element.
func AssertFIPBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	n := len(result.Input)
	if fip, ok := result.Runs[constants.DisciplineFIP]; ok {
		res := fip.Outcome.Result
		if res.Allocations != 0 || res.Reuses != n {
			t.Errorf("AssertFIPBounded: fip: %d allocations, %d reuses, want 0 and %d", res.Allocations, res.Reuses, n)
		}
		if fip.Outcome.Stats.PeakCells > n {
			t.Errorf("AssertFIPBounded: fip: peak %d cells for %d values", fip.Outcome.Stats.PeakCells, n)
		}
		if fip.Outcome.Stats.Deallocations != 0 {
			t.Errorf("AssertFIPBounded: fip: %d deallocations, want 0", fip.Outcome.Stats.Deallocations)
		}
	}
	if rc, ok := result.Runs[constants.DisciplineRC]; ok {
		res := rc.Outcome.Result
		if res.Allocations != n || res.Reuses != 0 {
			t.Errorf("AssertFIPBounded: rc: %d allocations, %d reuses, want %d and 0", res.Allocations, res.Reuses, n)
		}
		if rc.Outcome.Stats.Deallocations != n {
			t.Errorf("AssertFIPBounded: rc: %d deallocations, want %d", rc.Outcome.Stats.Deallocations, n)
		}
	}
}

// AssertResultEquivalent asserts that every discipline produced the reversed
// input, both in the outcome and in the final frame.
func AssertResultEquivalent(t *testing.T, result SimulationResult) {
	t.Helper()
	want := Reversed(result.Input)
	for d, run := range result.Runs {
		if !slices.Equal(run.Outcome.Result.Values, want) {
			t.Errorf("AssertResultEquivalent: %s: values %v, want %v", d, run.Outcome.Result.Values, want)
		}
		last := run.Last()
		b, ok := FindBinding(last, constants.LabelResult)
		if !ok {
			t.Errorf("AssertResultEquivalent: %s: no result binding in final frame", d)
			continue
		}
		if got := last.Chain(b.Target.CellOf()); !slices.Equal(nonNil(got), want) {
			t.Errorf("AssertResultEquivalent: %s: final frame chain %v, want %v", d, got, want)
		}
	}
}

// AssertAllProperties runs every per-run property on every run.
func AssertAllProperties(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, run := range result.Runs {
		AssertForest(t, run)
		AssertRefCounts(t, run)
		AssertCascadeOneCellPerFrame(t, run)
		AssertStagedRemoval(t, run)
		AssertScopeBalance(t, run)
		AssertNoLeaks(t, run)
		AssertSnapshotsImmutable(t, run)
	}
	AssertFIPBounded(t, result)
	AssertResultEquivalent(t, result)
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
