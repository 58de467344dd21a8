package lang

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// AllSlotOccurrences returns every slot occurrence of n in order.
func AllSlotOccurrences(n ENode) []ir.Slot {
	return deref(allSlotOccurrences(Clone(n)))
}

// PublicSlotOccurrences returns the public slot occurrences of n in order.
func PublicSlotOccurrences(n ENode) []ir.Slot {
	return deref(publicSlotOccurrences(Clone(n)))
}

// AppliedIDs returns copies of the child references of n in order.
func AppliedIDs(n ENode) []ir.AppliedID {
	ptrs := appliedIDOccurrences(n)
	out := make([]ir.AppliedID, len(ptrs))
	for i, p := range ptrs {
		out[i] = p.Clone()
	}
	return out
}

// IDs returns the class ids of the child references of n in order.
func IDs(n ENode) []ir.ID {
	ptrs := appliedIDOccurrences(n)
	out := make([]ir.ID, len(ptrs))
	for i, p := range ptrs {
		out[i] = p.ID
	}
	return out
}

// Arity returns the number of child references of n.
func Arity(n ENode) int {
	return len(appliedIDOccurrences(n))
}

// Slots returns the public slots of n.
func Slots(n ENode) *set.Set[ir.Slot] {
	return set.From(PublicSlotOccurrences(n))
}

// AllSlots returns every slot of n, bound ones included.
func AllSlots(n ENode) *set.Set[ir.Slot] {
	return set.From(AllSlotOccurrences(n))
}

// SlotOrder returns the public slots of n ordered by first occurrence.
func SlotOrder(n ENode) []ir.Slot {
	return firsts(PublicSlotOccurrences(n))
}

// MapAppliedIDs returns a copy of n with every child reference replaced by
// f applied to it.
func MapAppliedIDs(n ENode, f func(ir.AppliedID) ir.AppliedID) ENode {
	c := Clone(n)
	for _, p := range appliedIDOccurrences(c) {
		*p = f(*p)
	}
	return c
}

// WithAppliedIDs returns a copy of n whose child references are replaced by
// ids, in order. len(ids) must equal Arity(n).
func WithAppliedIDs(n ENode, ids []ir.AppliedID) ENode {
	c := Clone(n)
	ptrs := appliedIDOccurrences(c)
	if len(ptrs) != len(ids) {
		panic(fmt.Sprintf("lang: %v takes %d children, got %d", n.Kind(), len(ptrs), len(ids)))
	}
	for i, p := range ptrs {
		*p = ids[i].Clone()
	}
	return c
}

// ApplySlotMapPartial renames the public slots of n through m. Slots m does
// not map are left unchanged.
func ApplySlotMapPartial(n ENode, m ir.SlotMap) ENode {
	c := Clone(n)
	for _, p := range publicSlotOccurrences(c) {
		if v, ok := m.Get(*p); ok {
			*p = v
		}
	}
	return c
}

// ApplySlotMap renames the public slots of n through m. m must map every
// public slot of n.
func ApplySlotMap(n ENode, m ir.SlotMap) ENode {
	if !ir.IsSubset(Slots(n), m.KeySet()) {
		panic(fmt.Sprintf("lang: ApplySlotMap: %v does not map all free slots of %v", m, n))
	}
	return ApplySlotMapPartial(n, m)
}

// RefreshPrivate renames every non-public slot occurrence of n (binders and
// the occurrences they bind) to fresh slots. Nodes instantiated from shapes
// share canonical binder numbers; refreshing them keeps nested binders from
// capturing each other.
func RefreshPrivate(n ENode, src *ir.SlotSource) ENode {
	c := Clone(n)
	public := make(map[*ir.Slot]bool)
	for _, p := range publicSlotOccurrences(c) {
		public[p] = true
	}
	renamed := make(map[ir.Slot]ir.Slot)
	for _, p := range allSlotOccurrences(c) {
		if public[p] {
			continue
		}
		v, ok := renamed[*p]
		if !ok {
			v = src.Fresh()
			renamed[*p] = v
		}
		*p = v
	}
	return c
}

// OwnSlotOccurrences returns the slot occurrences of n that are fields of the
// node itself rather than of its child references, e.g. the binder of a Lam
// or the slot of a Var.
func OwnSlotOccurrences(n ENode) []ir.Slot {
	c := Clone(n)
	for _, p := range appliedIDOccurrences(c) {
		*p = ir.AppliedID{ID: p.ID}
	}
	return deref(allSlotOccurrences(c))
}

// SameOperator reports whether a and b are the same variant with the same
// payload, ignoring slots and child references.
func SameOperator(a, b ENode) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	return erase(a).String() == erase(b).String()
}

// erase zeroes every slot and child reference of n.
func erase(n ENode) ENode {
	c := Clone(n)
	for _, p := range appliedIDOccurrences(c) {
		*p = ir.AppliedID{}
	}
	for _, p := range allSlotOccurrences(c) {
		*p = 0
	}
	return c
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b ENode) bool {
	return a.String() == b.String()
}

func deref(ptrs []*ir.Slot) []ir.Slot {
	out := make([]ir.Slot, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// firsts deduplicates v, keeping the first occurrence of every slot.
func firsts(v []ir.Slot) []ir.Slot {
	seen := make(map[ir.Slot]bool, len(v))
	out := make([]ir.Slot, 0, len(v))
	for _, x := range v {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
