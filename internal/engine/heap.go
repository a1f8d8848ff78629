package engine

import (
	"math"
	"sort"

	"github.com/nvandessel/fipsim/internal/models"
)

type cell struct {
	value int
	next  models.CellID
}

// Heap owns the live list cells. The next graph is kept a forest of simple
// chains: every cell has at most one predecessor and no chain loops back.
type Heap struct {
	cells  map[models.CellID]*cell
	pred   map[models.CellID]models.CellID // successor -> predecessor
	lastID models.CellID
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{
		cells: make(map[models.CellID]*cell),
		pred:  make(map[models.CellID]models.CellID),
	}
}

// Allocate creates a fresh cell holding value and linked to next.
func (h *Heap) Allocate(value int, next models.CellID) models.CellID {
	if h.lastID == math.MaxUint64 {
		violation("allocate", "cell id space exhausted")
	}
	id := h.lastID + 1
	h.link("allocate", id, next)
	h.lastID = id
	h.cells[id] = &cell{value: value, next: next}
	return id
}

// Reuse overwrites value and next of a live cell and returns the same id.
// The old next link is retired in the same step. Reuse does not check that
// the cell is uniquely owned; that is the caller's obligation.
func (h *Heap) Reuse(id models.CellID, value int, next models.CellID) models.CellID {
	c := h.mustGet("reuse", id)
	if c.next != next {
		h.unlink(id, c.next)
		h.link("reuse", id, next)
		c.next = next
	}
	c.value = value
	return id
}

// deallocate removes a cell. The cell must have no predecessor. It is
// unexported because the Heap cannot see bindings; Engine.free checks those.
func (h *Heap) deallocate(id models.CellID) {
	c := h.mustGet("deallocate", id)
	if p, ok := h.pred[id]; ok {
		violation("deallocate", "%s is still linked from %s", id, p)
	}
	h.unlink(id, c.next)
	delete(h.cells, id)
}

// Get returns the value and successor of a live cell.
func (h *Heap) Get(id models.CellID) (int, models.CellID) {
	c := h.mustGet("get", id)
	return c.value, c.next
}

// Has reports whether id is a live cell.
func (h *Heap) Has(id models.CellID) bool {
	_, ok := h.cells[id]
	return ok
}

// Predecessor returns the cell whose next points at id, if any.
func (h *Heap) Predecessor(id models.CellID) (models.CellID, bool) {
	p, ok := h.pred[id]
	return p, ok
}

// Len returns the number of live cells.
func (h *Heap) Len() int {
	return len(h.cells)
}

// IDs returns the live cell ids in ascending order.
func (h *Heap) IDs() []models.CellID {
	ids := make([]models.CellID, 0, len(h.cells))
	for id := range h.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Heap) mustGet(op string, id models.CellID) *cell {
	c, ok := h.cells[id]
	if !ok {
		violation(op, "unknown cell %s", id)
	}
	return c
}

// link records from -> to, keeping the forest shape.
func (h *Heap) link(op string, from, to models.CellID) {
	if to == models.NoCell {
		return
	}
	if _, ok := h.cells[to]; !ok {
		violation(op, "successor %s is not a live cell", to)
	}
	if p, ok := h.pred[to]; ok {
		violation(op, "%s already has predecessor %s", to, p)
	}
	for cur := to; cur != models.NoCell; cur = h.cells[cur].next {
		if cur == from {
			violation(op, "linking %s -> %s would create a cycle", from, to)
		}
	}
	h.pred[to] = from
}

func (h *Heap) unlink(from, to models.CellID) {
	if to == models.NoCell {
		return
	}
	if h.pred[to] == from {
		delete(h.pred, to)
	}
}
