package ir

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"
)

// AppliedID is an occurrence of an e-class at a use site.
//
// M renames the class's exposed slots (its keys) to the slots used at this
// occurrence (its values). M is always a bijection. Two AppliedIDs with the
// same ID but different M denote alpha-variants of the same term.
type AppliedID struct {
	ID ID
	M  SlotMap
}

// NewAppliedID builds an AppliedID, panicking if m is not a bijection.
func NewAppliedID(id ID, m SlotMap) AppliedID {
	MustBijection(m)
	return AppliedID{ID: id, M: m}
}

// Slots returns the slots used at this occurrence.
func (a AppliedID) Slots() *set.Set[Slot] {
	return a.M.ValueSet()
}

// ApplySlotMap renames the occurrence slots through m. m must map every slot
// of the occurrence.
func (a AppliedID) ApplySlotMap(m SlotMap) AppliedID {
	if !IsSubset(a.Slots(), m.KeySet()) {
		panic(fmt.Sprintf("ir: AppliedID.ApplySlotMap: %v does not map all slots of %v", m, a))
	}
	return a.ApplySlotMapPartial(m)
}

// ApplySlotMapPartial renames the occurrence slots through m, dropping the
// pairs m does not cover.
func (a AppliedID) ApplySlotMapPartial(m SlotMap) AppliedID {
	return NewAppliedID(a.ID, a.M.ComposePartial(m))
}

// Clone returns a copy that shares no storage with a.
func (a AppliedID) Clone() AppliedID {
	return AppliedID{ID: a.ID, M: a.M.Clone()}
}

// Equal reports whether a and b are the same occurrence.
func (a AppliedID) Equal(b AppliedID) bool {
	return a.ID == b.ID && a.M.Equal(b.M)
}

// String renders a as "c3{$1->$7}".
func (a AppliedID) String() string {
	return a.ID.String() + a.M.String()
}
