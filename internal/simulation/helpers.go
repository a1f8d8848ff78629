package simulation

import (
	"encoding/json"
	"slices"

	"github.com/nvandessel/fipsim/internal/models"
)

// Reversed returns a reversed copy of values, never nil.
func Reversed(values []int) []int {
	out := append([]int{}, values...)
	slices.Reverse(out)
	return out
}

// Fingerprint is the JSON encoding of a snapshot.
func Fingerprint(snap models.Snapshot) string {
	data, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(data)
}

// FindBinding returns the innermost binding with the given label.
func FindBinding(snap models.Snapshot, label string) (models.BindingView, bool) {
	for i := len(snap.Frames) - 1; i >= 0; i-- {
		for _, b := range snap.Frames[i].Bindings {
			if b.Label == label {
				return b, true
			}
		}
	}
	return models.BindingView{}, false
}

// expectedRefCounts derives reference counts from a snapshot's own structure:
// one per incoming next link plus one per binding in any frame.
func expectedRefCounts(snap models.Snapshot) map[models.CellID]int {
	counts := make(map[models.CellID]int, len(snap.Cells))
	for _, c := range snap.Cells {
		if c.Next != models.NoCell {
			counts[c.Next]++
		}
	}
	for _, f := range snap.Frames {
		for _, b := range f.Bindings {
			if id := b.Target.CellOf(); id != models.NoCell {
				counts[id]++
			}
		}
	}
	return counts
}

func bindingIDs(snap models.Snapshot) map[models.BindingID]models.BindingView {
	out := make(map[models.BindingID]models.BindingView)
	for _, f := range snap.Frames {
		for _, b := range f.Bindings {
			out[b.ID] = b
		}
	}
	return out
}

func cellIDs(snap models.Snapshot) map[models.CellID]models.CellView {
	out := make(map[models.CellID]models.CellView, len(snap.Cells))
	for _, c := range snap.Cells {
		out[c.ID] = c
	}
	return out
}
