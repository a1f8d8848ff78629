package engine

import "github.com/nvandessel/fipsim/internal/models"

// Tracker derives reference counts from the current Heap and ScopeStack.
// Counts are never stored or patched; every call recomputes them.
type Tracker struct {
	heap   *Heap
	scopes *ScopeStack
}

// NewTracker returns a tracker reading h and s.
func NewTracker(h *Heap, s *ScopeStack) *Tracker {
	return &Tracker{heap: h, scopes: s}
}

// Recompute returns the reference count of every live cell:
// one for a predecessor link, plus one per live binding targeting it.
func (t *Tracker) Recompute() map[models.CellID]int {
	counts := make(map[models.CellID]int, t.heap.Len())
	for _, id := range t.heap.IDs() {
		if _, ok := t.heap.Predecessor(id); ok {
			counts[id] = 1
		} else {
			counts[id] = 0
		}
	}
	t.scopes.Each(func(b Binding) {
		target := b.Target.CellOf()
		if target == models.NoCell {
			return
		}
		if _, ok := counts[target]; !ok {
			violation("recompute", "binding %s (%s) targets dead cell %s", b.ID, b.Label, target)
		}
		counts[target]++
	})
	return counts
}

// Roots returns the cells without a predecessor, in ascending id order.
func (t *Tracker) Roots() []models.CellID {
	var roots []models.CellID
	for _, id := range t.heap.IDs() {
		if _, ok := t.heap.Predecessor(id); !ok {
			roots = append(roots, id)
		}
	}
	return roots
}

// NextUnreachable returns the lowest-id root whose count is zero.
func (t *Tracker) NextUnreachable() (models.CellID, bool) {
	counts := t.Recompute()
	for _, id := range t.Roots() {
		if counts[id] == 0 {
			return id, true
		}
	}
	return models.NoCell, false
}
