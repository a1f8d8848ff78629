package engine

import (
	"math"

	"github.com/nvandessel/fipsim/internal/models"
)

// Binding is a named, frame-owned reference to a cell, a scalar, or nothing.
type Binding struct {
	ID        models.BindingID
	Label     string
	Target    models.Slot
	Transient bool
	Depth     int // depth of the owning frame
}

type frame struct {
	label    string
	bindings []models.BindingID // creation order
}

// ScopeStack is a stack of frames, each owning its bindings. The root frame
// is created with the stack and cannot be popped.
type ScopeStack struct {
	frames   []*frame
	bindings map[models.BindingID]*Binding
	lastID   models.BindingID
}

// NewScopeStack returns a stack holding only the root frame.
func NewScopeStack(rootLabel string) *ScopeStack {
	return &ScopeStack{
		frames:   []*frame{{label: rootLabel}},
		bindings: make(map[models.BindingID]*Binding),
	}
}

// PushScope pushes a new empty frame.
func (s *ScopeStack) PushScope(label string) {
	s.frames = append(s.frames, &frame{label: label})
}

// PopScope removes the top frame, which must own no bindings.
func (s *ScopeStack) PopScope() {
	if len(s.frames) == 1 {
		violation("pop scope", "cannot pop the root frame")
	}
	top := s.frames[len(s.frames)-1]
	if len(top.bindings) > 0 {
		violation("pop scope", "frame %q still owns %d bindings", top.label, len(top.bindings))
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Bind creates a binding in the top frame.
func (s *ScopeStack) Bind(label string, target models.Slot, transient bool) models.BindingID {
	if s.lastID == math.MaxUint64 {
		violation("bind", "binding id space exhausted")
	}
	s.lastID++
	id := s.lastID
	depth := len(s.frames) - 1
	s.bindings[id] = &Binding{
		ID:        id,
		Label:     label,
		Target:    target,
		Transient: transient,
		Depth:     depth,
	}
	s.frames[depth].bindings = append(s.frames[depth].bindings, id)
	return id
}

// Rebind changes the target of an existing binding, keeping its identity.
func (s *ScopeStack) Rebind(id models.BindingID, target models.Slot) {
	s.mustGet("rebind", id).Target = target
}

// IsInScope reports whether the binding belongs to the top frame.
func (s *ScopeStack) IsInScope(id models.BindingID) bool {
	b, ok := s.bindings[id]
	return ok && b.Depth == len(s.frames)-1
}

// Binding returns a copy of the binding, if it is alive.
func (s *ScopeStack) Binding(id models.BindingID) (Binding, bool) {
	b, ok := s.bindings[id]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Depth returns the index of the top frame; the root frame is depth 0.
func (s *ScopeStack) Depth() int {
	return len(s.frames) - 1
}

// Len returns the number of live bindings across all frames.
func (s *ScopeStack) Len() int {
	return len(s.bindings)
}

// FrameLabel returns the label of the frame at depth.
func (s *ScopeStack) FrameLabel(depth int) string {
	return s.frames[depth].label
}

// FrameBindings returns the bindings owned by the frame at depth, in
// creation order.
func (s *ScopeStack) FrameBindings(depth int) []Binding {
	f := s.frames[depth]
	out := make([]Binding, 0, len(f.bindings))
	for _, id := range f.bindings {
		out = append(out, *s.bindings[id])
	}
	return out
}

// Each calls fn for every live binding, outermost frame first and in
// creation order within a frame.
func (s *ScopeStack) Each(fn func(Binding)) {
	for _, f := range s.frames {
		for _, id := range f.bindings {
			fn(*s.bindings[id])
		}
	}
}

// remove detaches a binding from its frame and destroys it. Only the
// Lifecycle Engine calls this, after staged removal.
func (s *ScopeStack) remove(id models.BindingID) {
	b := s.mustGet("remove", id)
	f := s.frames[b.Depth]
	for i, bid := range f.bindings {
		if bid == id {
			f.bindings = append(f.bindings[:i], f.bindings[i+1:]...)
			break
		}
	}
	delete(s.bindings, id)
}

func (s *ScopeStack) mustGet(op string, id models.BindingID) *Binding {
	b, ok := s.bindings[id]
	if !ok {
		violation(op, "unknown binding %s", id)
	}
	return b
}
