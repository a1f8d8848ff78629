package engine

import (
	"errors"
	"testing"

	"github.com/nvandessel/fipsim/internal/models"
)

// expectViolation runs fn and fails unless it panics with *InvariantError.
func expectViolation(t *testing.T, op string, fn func()) {
	t.Helper()
	err := Guard(fn)
	if err == nil {
		t.Fatalf("expected invariant violation from %s, got none", op)
	}
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InvariantError, got %T: %v", err, err)
	}
	if ie.Op != op {
		t.Errorf("violation op = %q, want %q", ie.Op, op)
	}
}

func TestHeap_AllocateAssignsIncreasingIDs(t *testing.T) {
	h := NewHeap()
	a := h.Allocate(1, models.NoCell)
	b := h.Allocate(2, a)
	c := h.Allocate(3, b)

	if !(a < b && b < c) {
		t.Errorf("ids not increasing: %v %v %v", a, b, c)
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
	if p, ok := h.Predecessor(a); !ok || p != b {
		t.Errorf("Predecessor(%v) = %v, %v; want %v", a, p, ok, b)
	}
	if _, ok := h.Predecessor(c); ok {
		t.Errorf("head %v should have no predecessor", c)
	}
}

func TestHeap_IDsNeverReused(t *testing.T) {
	h := NewHeap()
	a := h.Allocate(1, models.NoCell)
	h.deallocate(a)
	b := h.Allocate(1, models.NoCell)
	if b == a {
		t.Errorf("id %v reused after deallocation", a)
	}
}

func TestHeap_ReuseKeepsIdentity(t *testing.T) {
	h := NewHeap()
	tail := h.Allocate(2, models.NoCell)
	head := h.Allocate(1, tail)
	other := h.Allocate(9, models.NoCell)

	got := h.Reuse(head, 5, other)
	if got != head {
		t.Fatalf("Reuse returned %v, want %v", got, head)
	}
	v, next := h.Get(head)
	if v != 5 || next != other {
		t.Errorf("Get(%v) = (%d, %v), want (5, %v)", head, v, next, other)
	}
	if _, ok := h.Predecessor(tail); ok {
		t.Error("old successor link was not retired")
	}
	if p, ok := h.Predecessor(other); !ok || p != head {
		t.Errorf("Predecessor(%v) = %v, %v; want %v", other, p, ok, head)
	}
}

func TestHeap_Violations(t *testing.T) {
	tests := []struct {
		name string
		op   string
		fn   func(h *Heap)
	}{
		{"get unknown", "get", func(h *Heap) { h.Get(42) }},
		{"reuse unknown", "reuse", func(h *Heap) { h.Reuse(42, 0, models.NoCell) }},
		{"deallocate unknown", "deallocate", func(h *Heap) { h.deallocate(42) }},
		{"allocate to dead successor", "allocate", func(h *Heap) { h.Allocate(1, 42) }},
		{"deallocate linked cell", "deallocate", func(h *Heap) {
			tail := h.Allocate(1, models.NoCell)
			h.Allocate(2, tail)
			h.deallocate(tail)
		}},
		{"second predecessor", "allocate", func(h *Heap) {
			tail := h.Allocate(1, models.NoCell)
			h.Allocate(2, tail)
			h.Allocate(3, tail)
		}},
		{"cycle through reuse", "reuse", func(h *Heap) {
			tail := h.Allocate(1, models.NoCell)
			head := h.Allocate(2, tail)
			h.Reuse(tail, 1, head)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeap()
			expectViolation(t, tt.op, func() { tt.fn(h) })
		})
	}
}

func TestGuard_RepanicsForeignPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	_ = Guard(func() { panic("boom") })
	t.Error("Guard swallowed a foreign panic")
}
