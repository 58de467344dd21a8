package ir

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hashicorp/go-set/v3"
)

// ID identifies an e-class. IDs carry no ordering semantics beyond sorting
// for deterministic iteration.
type ID int

// String renders an ID as "c<n>".
func (i ID) String() string {
	return fmt.Sprintf("c%d", int(i))
}

// Slot is a placeholder for a bound or free variable at the node level.
type Slot int

// String renders a Slot as "$<n>".
func (s Slot) String() string {
	return fmt.Sprintf("$%d", int(s))
}

// SlotSource hands out globally fresh slots for one run.
//
// Each EGraph owns its own source, so two runs in the same process (for
// example parallel tests) never perturb each other's numbering.
//
// Thread-safety: Fresh is safe for concurrent use (atomic operations), but
// the EGraph that owns a source is single-writer.
type SlotSource struct {
	last atomic.Int64
}

// NewSlotSource creates a source whose first fresh slot is $1.
func NewSlotSource() *SlotSource {
	return &SlotSource{}
}

// NewSlotSourceAt creates a source that resumes after the given slot number.
func NewSlotSourceAt(last int64) *SlotSource {
	s := &SlotSource{}
	s.last.Store(last)
	return s
}

// Fresh returns a slot that this source has never returned before.
func (s *SlotSource) Fresh() Slot {
	return Slot(s.last.Add(1))
}

// Current returns the last slot number handed out (0 if none).
func (s *SlotSource) Current() int64 {
	return s.last.Load()
}

// NewSlotSet builds a slot set from the given slots.
func NewSlotSet(slots ...Slot) *set.Set[Slot] {
	return set.From(slots)
}

// SortedSlots returns the members of s in ascending order.
func SortedSlots(s *set.Set[Slot]) []Slot {
	if s == nil {
		return nil
	}
	out := s.Slice()
	slices.Sort(out)
	return out
}

// Intersect returns the slots contained in both a and b.
func Intersect(a, b *set.Set[Slot]) *set.Set[Slot] {
	out := set.New[Slot](0)
	for _, x := range SortedSlots(a) {
		if b.Contains(x) {
			out.Insert(x)
		}
	}
	return out
}

// Union returns the slots contained in a or b.
func Union(a, b *set.Set[Slot]) *set.Set[Slot] {
	out := set.New[Slot](a.Size() + b.Size())
	for _, x := range SortedSlots(a) {
		out.Insert(x)
	}
	for _, x := range SortedSlots(b) {
		out.Insert(x)
	}
	return out
}

// IsSubset reports whether every slot of sub is contained in super.
func IsSubset(sub, super *set.Set[Slot]) bool {
	for _, x := range SortedSlots(sub) {
		if !super.Contains(x) {
			return false
		}
	}
	return true
}

// SameSlots reports whether a and b contain exactly the same slots.
func SameSlots(a, b *set.Set[Slot]) bool {
	return a.Size() == b.Size() && IsSubset(a, b)
}

// FormatSlots renders a slot set in sorted order, e.g. "[$1 $4]".
func FormatSlots(s *set.Set[Slot]) string {
	return fmt.Sprintf("%v", SortedSlots(s))
}
