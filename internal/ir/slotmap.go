package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

type slotPair struct {
	from Slot
	to   Slot
}

// SlotMap is a partial mapping Slot -> Slot.
//
// Pairs are kept sorted by key. A SlotMap is a value type: methods that
// return a SlotMap never alias the receiver's storage. Only Insert and
// Remove mutate in place.
type SlotMap struct {
	pairs []slotPair
}

// NewSlotMap returns an empty map.
func NewSlotMap() SlotMap {
	return SlotMap{}
}

// SlotMapFrom builds a SlotMap from a Go map.
func SlotMapFrom(m map[Slot]Slot) SlotMap {
	out := SlotMap{pairs: make([]slotPair, 0, len(m))}
	for k, v := range m {
		out.pairs = append(out.pairs, slotPair{from: k, to: v})
	}
	slices.SortFunc(out.pairs, func(a, b slotPair) int { return int(a.from) - int(b.from) })
	return out
}

// Identity maps every slot of s to itself.
func Identity(s *set.Set[Slot]) SlotMap {
	keys := SortedSlots(s)
	out := SlotMap{pairs: make([]slotPair, len(keys))}
	for i, k := range keys {
		out.pairs[i] = slotPair{from: k, to: k}
	}
	return out
}

// BijectionFromFreshTo builds a bijection from newly allocated slots to the
// slots of s. Its inverse renames s to slots nothing else uses yet.
func BijectionFromFreshTo(s *set.Set[Slot], src *SlotSource) SlotMap {
	out := NewSlotMap()
	for _, x := range SortedSlots(s) {
		out.Insert(src.Fresh(), x)
	}
	return out
}

// MustBijection returns m, panicking if m is not injective.
func MustBijection(m SlotMap) SlotMap {
	if !m.IsBijection() {
		panic(fmt.Sprintf("ir: slot map %v is not a bijection", m))
	}
	return m
}

func (m SlotMap) search(k Slot) (int, bool) {
	return slices.BinarySearchFunc(m.pairs, k, func(p slotPair, k Slot) int {
		return int(p.from) - int(k)
	})
}

// Len returns the number of pairs.
func (m SlotMap) Len() int {
	return len(m.pairs)
}

// Get returns the image of k.
func (m SlotMap) Get(k Slot) (Slot, bool) {
	i, ok := m.search(k)
	if !ok {
		return 0, false
	}
	return m.pairs[i].to, true
}

// MustGet returns the image of k, panicking if k is unmapped.
func (m SlotMap) MustGet(k Slot) Slot {
	v, ok := m.Get(k)
	if !ok {
		panic(fmt.Sprintf("ir: slot %v missing from slot map %v", k, m))
	}
	return v
}

// Contains reports whether k is mapped.
func (m SlotMap) Contains(k Slot) bool {
	_, ok := m.search(k)
	return ok
}

// Insert maps k to v, replacing an existing entry for k.
func (m *SlotMap) Insert(k, v Slot) {
	i, ok := m.search(k)
	if ok {
		m.pairs[i].to = v
		return
	}
	m.pairs = slices.Insert(m.pairs, i, slotPair{from: k, to: v})
}

// Remove deletes the entry for k, if any.
func (m *SlotMap) Remove(k Slot) {
	if i, ok := m.search(k); ok {
		m.pairs = slices.Delete(m.pairs, i, i+1)
	}
}

// Clone returns a copy that shares no storage with m.
func (m SlotMap) Clone() SlotMap {
	return SlotMap{pairs: slices.Clone(m.pairs)}
}

// Keys returns the mapped slots in ascending order.
func (m SlotMap) Keys() []Slot {
	out := make([]Slot, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = p.from
	}
	return out
}

// Values returns the images in key order.
func (m SlotMap) Values() []Slot {
	out := make([]Slot, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = p.to
	}
	return out
}

// KeySet returns the domain of m.
func (m SlotMap) KeySet() *set.Set[Slot] {
	return set.From(m.Keys())
}

// ValueSet returns the image of m.
func (m SlotMap) ValueSet() *set.Set[Slot] {
	return set.From(m.Values())
}

// ValuePtrs returns pointers to the images in key order. Writing through
// them renames the occurrences in place.
func (m *SlotMap) ValuePtrs() []*Slot {
	out := make([]*Slot, len(m.pairs))
	for i := range m.pairs {
		out[i] = &m.pairs[i].to
	}
	return out
}

// IsBijection reports whether m is injective.
func (m SlotMap) IsBijection() bool {
	seen := make(map[Slot]struct{}, len(m.pairs))
	for _, p := range m.pairs {
		if _, dup := seen[p.to]; dup {
			return false
		}
		seen[p.to] = struct{}{}
	}
	return true
}

// Inverse swaps keys and values. m must be injective.
func (m SlotMap) Inverse() SlotMap {
	MustBijection(m)
	out := SlotMap{pairs: make([]slotPair, len(m.pairs))}
	for i, p := range m.pairs {
		out.pairs[i] = slotPair{from: p.to, to: p.from}
	}
	slices.SortFunc(out.pairs, func(a, b slotPair) int { return int(a.from) - int(b.from) })
	return out
}

// ComposePartial applies m, then other. Keys of m whose image other does not
// map are dropped.
func (m SlotMap) ComposePartial(other SlotMap) SlotMap {
	out := SlotMap{pairs: make([]slotPair, 0, len(m.pairs))}
	for _, p := range m.pairs {
		if v, ok := other.Get(p.to); ok {
			out.pairs = append(out.pairs, slotPair{from: p.from, to: v})
		}
	}
	return out
}

// Compose applies m, then other. Every image of m must be mapped by other.
func (m SlotMap) Compose(other SlotMap) SlotMap {
	out := SlotMap{pairs: make([]slotPair, len(m.pairs))}
	for i, p := range m.pairs {
		out.pairs[i] = slotPair{from: p.from, to: other.MustGet(p.to)}
	}
	return out
}

// RestrictTo keeps only the keys contained in s.
func (m SlotMap) RestrictTo(s *set.Set[Slot]) SlotMap {
	out := SlotMap{pairs: make([]slotPair, 0, len(m.pairs))}
	for _, p := range m.pairs {
		if s.Contains(p.from) {
			out.pairs = append(out.pairs, p)
		}
	}
	return out
}

// Equal reports whether m and other hold the same pairs.
func (m SlotMap) Equal(other SlotMap) bool {
	return slices.Equal(m.pairs, other.pairs)
}

// String renders m as "{$1->$4, $2->$5}".
func (m SlotMap) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range m.pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v->%v", p.from, p.to)
	}
	b.WriteByte('}')
	return b.String()
}
