// Package ir provides the slot algebra that every other package builds on.
//
// This package contains the identifier types (ID, Slot), slot renamings
// (SlotMap) and class occurrences (AppliedID). All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A SlotMap claiming to be a bijection is checked when it is built into an
//     AppliedID. A non-injective map is a programming error and panics.
//   - Slot 0 is never handed out by a SlotSource. Shapes use 0 for the first
//     slot occurrence, which for binder variants is always the binder.
//   - Every SlotMap keeps its pairs sorted by key, so iteration order is
//     deterministic and the values of an AppliedID are "ordered slots".
package ir
