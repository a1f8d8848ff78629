// Package reversal implements the recursive list reversal that drives the
// simulation, in both the reference-counting and the functional-in-place
// (FIP) discipline.
package reversal

import (
	"strconv"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/models"
)

// Committer publishes a step. It is the only rendering-related capability
// the algorithm depends on.
type Committer interface {
	Commit()
}

// Machine is the state the algorithm manipulates: a heap of cells and a
// stack of scopes, plus Commit. *engine.Engine satisfies it.
type Machine interface {
	Committer

	PushScope(label string)
	PopScope()
	Bind(label string, target models.Slot, transient bool) models.BindingID
	Rebind(id models.BindingID, target models.Slot)
	QueueRemoval(ids ...models.BindingID)

	Seed(value int, next models.CellID) models.CellID
	Allocate(value int, next models.CellID) models.CellID
	Reuse(id models.CellID, value int, next models.CellID) models.CellID
	Cell(id models.CellID) (value int, next models.CellID)
}

// Result summarizes one reversal run. Allocations and Reuses count only heap
// operations performed by the reversal itself, not the input materialization.
type Result struct {
	Head        models.CellID `json:"head"`
	Values      []int         `json:"values"`
	Allocations int           `json:"allocations"`
	Reuses      int           `json:"reuses"`
	MaxDepth    int           `json:"max_depth"`
}

type reverser struct {
	m        Machine
	fip      bool
	allocs   int
	reuses   int
	maxDepth int
}

// Run materializes values as a chain in the root frame, reverses it and
// leaves the reversed chain bound to "result" in the root frame.
//
// Under FIP the root's "list" binding is handed to the first call, so the
// input cells are uniquely owned and get reused. Under RC the root keeps
// its reference for the duration of the call and drops it afterwards,
// which is when the original chain is freed.
func Run(m Machine, values []int, fip bool) Result {
	head := Materialize(m, values)
	listB := m.Bind(constants.LabelList, models.CellRef(head), false)
	m.Commit()

	r := &reverser{m: m, fip: fip}
	if fip {
		m.QueueRemoval(listB)
	}
	res := r.reverse(head, models.NoCell, 0)

	m.Bind(constants.LabelResult, models.CellRef(res), false)
	m.Commit()
	if !fip {
		m.QueueRemoval(listB)
		m.Commit()
	}

	return Result{
		Head:        res,
		Values:      Values(m, res),
		Allocations: r.allocs,
		Reuses:      r.reuses,
		MaxDepth:    r.maxDepth,
	}
}

// Materialize seeds values as a chain, first value at the head, and
// returns the head. The tail is placed first, so the head has the highest
// cell id. An empty input yields NoCell.
func Materialize(m Machine, values []int) models.CellID {
	head := models.NoCell
	for i := len(values) - 1; i >= 0; i-- {
		head = m.Seed(values[i], head)
	}
	return head
}

// Values walks the chain starting at head.
func Values(m Machine, head models.CellID) []int {
	out := []int{}
	for id := head; id != models.NoCell; {
		v, next := m.Cell(id)
		out = append(out, v)
		id = next
	}
	return out
}

// FrameLabel returns the scope label used for a call at depth.
func FrameLabel(depth int) string {
	return constants.ReverseFramePrefix + strconv.Itoa(depth)
}

func (r *reverser) reverse(list, acc models.CellID, depth int) models.CellID {
	m := r.m
	if depth > r.maxDepth {
		r.maxDepth = depth
	}

	m.PushScope(FrameLabel(depth))
	listB := m.Bind(constants.LabelList, models.CellRef(list), false)
	accB := m.Bind(constants.LabelAcc, models.CellRef(acc), false)
	m.Commit()

	if list == models.NoCell {
		if !r.fip {
			m.QueueRemoval(listB)
		}
		m.QueueRemoval(accB)
		m.PopScope()
		return acc
	}

	// x is scratch: it is shown once and then retires by itself.
	x, xs := m.Cell(list)
	m.Bind(constants.LabelHead, models.Value(x), true)
	xsB := m.Bind(constants.LabelTail, models.CellRef(xs), false)
	m.Commit()
	m.QueueRemoval(accB)

	var cons models.CellID
	var holder models.BindingID
	if r.fip {
		// list is the only reference left to the head cell.
		cons = m.Reuse(list, x, acc)
		m.Rebind(listB, models.CellRef(cons))
		holder = listB
		r.reuses++
	} else {
		cons = m.Allocate(x, acc)
		holder = m.Bind(constants.LabelNew, models.CellRef(cons), false)
		r.allocs++
	}
	m.Commit()

	m.QueueRemoval(xsB, holder)
	res := r.reverse(xs, cons, depth+1)

	retB := m.Bind(constants.LabelReturn, models.CellRef(res), false)
	m.Commit()
	m.QueueRemoval(retB)
	m.PopScope()
	return res
}
