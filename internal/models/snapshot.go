package models

import "slices"

// CellTag is the display state of a cell within one snapshot.
type CellTag string

const (
	CellNormal         CellTag = "normal"
	CellNew            CellTag = "new"             // allocated since the previous snapshot
	CellMutated        CellTag = "mutated"         // reused in place since the previous snapshot
	CellPendingDealloc CellTag = "pending-dealloc" // about to be freed by the cascade
)

// BindingTag is the display state of a binding within one snapshot.
type BindingTag string

const (
	BindingNormal         BindingTag = "normal"
	BindingPendingRemoval BindingTag = "pending-removal"
)

// EdgeKind distinguishes structural links from binding references.
type EdgeKind string

const (
	EdgeNext    EdgeKind = "next"    // cell -> successor
	EdgeBinding EdgeKind = "binding" // binding -> target cell
)

// CellView is one live cell as seen in a snapshot.
type CellView struct {
	ID       CellID  `json:"id"`
	Value    int     `json:"value"`
	Next     CellID  `json:"next,omitempty"`
	RefCount int     `json:"refcount"`
	Tag      CellTag `json:"tag"`
}

// BindingView is one binding as seen in a snapshot.
type BindingView struct {
	ID        BindingID  `json:"id"`
	Label     string     `json:"label"`
	Target    Slot       `json:"target"`
	Transient bool       `json:"transient,omitempty"`
	Tag       BindingTag `json:"tag"`
}

// FrameView is one scope frame, outermost first.
type FrameView struct {
	Label    string        `json:"label"`
	Depth    int           `json:"depth"`
	Bindings []BindingView `json:"bindings"`
}

// Edge is a drawable arrow. From is "c<N>" for next edges and "b<N>" for
// binding edges; To is always a cell.
type Edge struct {
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	To   CellID   `json:"to"`
}

// Snapshot is an immutable copy of engine state at one emission point.
// Cells are ordered by id; frames from the root frame to the top.
type Snapshot struct {
	Seq    int         `json:"seq"`
	Step   string      `json:"step"`
	Cells  []CellView  `json:"cells"`
	Frames []FrameView `json:"frames"`
	Edges  []Edge      `json:"edges"`
}

// Cell returns the view of id, if present.
func (s Snapshot) Cell(id CellID) (CellView, bool) {
	for _, c := range s.Cells {
		if c.ID == id {
			return c, true
		}
	}
	return CellView{}, false
}

// Top returns the topmost frame. Every snapshot has at least the root frame.
func (s Snapshot) Top() FrameView {
	if len(s.Frames) == 0 {
		return FrameView{}
	}
	return s.Frames[len(s.Frames)-1]
}

// Chain follows next links from head and returns the values in order.
func (s Snapshot) Chain(head CellID) []int {
	var out []int
	seen := make(map[CellID]bool)
	for id := head; id != NoCell && !seen[id]; {
		seen[id] = true
		c, ok := s.Cell(id)
		if !ok {
			break
		}
		out = append(out, c.Value)
		id = c.Next
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Seq: s.Seq, Step: s.Step}
	out.Cells = slices.Clone(s.Cells)
	out.Edges = slices.Clone(s.Edges)
	if s.Frames == nil {
		return out
	}
	out.Frames = make([]FrameView, len(s.Frames))
	for i, f := range s.Frames {
		out.Frames[i] = FrameView{
			Label:    f.Label,
			Depth:    f.Depth,
			Bindings: slices.Clone(f.Bindings),
		}
	}
	return out
}
