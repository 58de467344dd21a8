package lang

import (
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// Shape is the canonical representative of a node's renaming class.
//
// Node has its slots renumbered $0, $1, ... by first textual occurrence.
// Bij maps the public slots of Node back to the slots of the original node,
// so ApplySlotMap(s.Node, s.Bij) reproduces the original up to the names of
// bound slots.
type Shape struct {
	Node ENode
	Bij  ir.SlotMap
}

// Key is the hash-cons key of the shape. Two nodes have equal keys exactly
// when one is a renaming of the other.
func (s Shape) Key() string {
	return s.Node.String()
}

// ShapeOf computes the shape of n.
func ShapeOf(n ENode) Shape {
	c := Clone(n)

	// Bound occurrences first get placeholder slots below zero, keyed by
	// position, so that a binder that reuses the name of a free slot (as in
	// a Let whose value mentions the bound name) is kept apart from it.
	public := make(map[*ir.Slot]bool)
	for _, p := range publicSlotOccurrences(c) {
		public[p] = true
	}
	placeholder := make(map[ir.Slot]ir.Slot)
	next := ir.Slot(-1)
	for _, p := range allSlotOccurrences(c) {
		if public[p] {
			continue
		}
		v, ok := placeholder[*p]
		if !ok {
			v = next
			next--
			placeholder[*p] = v
		}
		*p = v
	}

	canon := make(map[ir.Slot]ir.Slot)
	bij := ir.NewSlotMap()
	for _, p := range allSlotOccurrences(c) {
		v, ok := canon[*p]
		if !ok {
			v = ir.Slot(len(canon))
			canon[*p] = v
		}
		if public[p] {
			bij.Insert(v, *p)
		}
		*p = v
	}
	return Shape{Node: c, Bij: bij}
}

// IsShape reports whether n is already in canonical form.
func IsShape(n ENode) bool {
	return Equal(ShapeOf(n).Node, n)
}
