package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CellID identifies a heap cell. IDs start at 1, increase monotonically
// and are never reused.
type CellID uint64

// NoCell is the zero CellID, used for "no successor".
const NoCell CellID = 0

// String renders the id the way snapshots label cells ("c3").
func (id CellID) String() string {
	if id == NoCell {
		return "nil"
	}
	return "c" + strconv.FormatUint(uint64(id), 10)
}

// BindingID identifies a scope binding. Binding ids live in their own
// id space, separate from cell ids.
type BindingID uint64

// String renders the id the way snapshots label bindings ("b7").
func (id BindingID) String() string {
	return "b" + strconv.FormatUint(uint64(id), 10)
}

// SlotKind tags the variant held by a Slot.
type SlotKind uint8

const (
	SlotEmpty SlotKind = iota // no value
	SlotValue                 // plain integer, never counted
	SlotCell                  // reference to a live cell
)

func (k SlotKind) String() string {
	switch k {
	case SlotValue:
		return "value"
	case SlotCell:
		return "cell"
	default:
		return "empty"
	}
}

// Slot is the target of a binding: Empty, Value(int) or CellRef(CellID).
type Slot struct {
	Kind  SlotKind
	Value int
	Cell  CellID
}

// Empty returns the empty slot.
func Empty() Slot { return Slot{Kind: SlotEmpty} }

// Value returns a slot holding a plain integer.
func Value(v int) Slot { return Slot{Kind: SlotValue, Value: v} }

// CellRef returns a slot pointing at a cell. CellRef(NoCell) is Empty.
func CellRef(id CellID) Slot {
	if id == NoCell {
		return Empty()
	}
	return Slot{Kind: SlotCell, Cell: id}
}

// IsEmpty reports whether the slot holds nothing.
func (s Slot) IsEmpty() bool { return s.Kind == SlotEmpty }

// CellOf returns the referenced cell, or NoCell for non-reference slots.
func (s Slot) CellOf() CellID {
	if s.Kind != SlotCell {
		return NoCell
	}
	return s.Cell
}

func (s Slot) String() string {
	switch s.Kind {
	case SlotValue:
		return strconv.Itoa(s.Value)
	case SlotCell:
		return s.Cell.String()
	default:
		return "[]"
	}
}

type slotJSON struct {
	Kind  string `json:"kind"`
	Value *int   `json:"value,omitempty"`
	Cell  CellID `json:"cell,omitempty"`
}

// MarshalJSON encodes the slot as {"kind": ..., "value"|"cell": ...}.
func (s Slot) MarshalJSON() ([]byte, error) {
	out := slotJSON{Kind: s.Kind.String()}
	switch s.Kind {
	case SlotValue:
		v := s.Value
		out.Value = &v
	case SlotCell:
		out.Cell = s.Cell
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var in slotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "empty", "":
		*s = Empty()
	case "value":
		if in.Value == nil {
			return fmt.Errorf("value slot without value")
		}
		*s = Value(*in.Value)
	case "cell":
		if in.Cell == NoCell {
			return fmt.Errorf("cell slot without cell id")
		}
		*s = CellRef(in.Cell)
	default:
		return fmt.Errorf("unknown slot kind %q", in.Kind)
	}
	return nil
}
