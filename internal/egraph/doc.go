// Package egraph implements the slotted e-graph: the class table, the
// hash-cons, the union-find and the union engine that keeps them consistent.
//
// ARCHITECTURE:
//
// Members are stored by shape. A class maps each member's shape key to the
// bijection from the shape's canonical slots to the class's exposed slots.
// The hash-cons maps a shape key to the one live class that owns it.
//
// The union-find holds an entry for every class ever allocated. Live classes
// map to themselves under the identity renaming; merged classes map to their
// replacement. After every merge the table is renormalized so that every
// entry is exactly one hop away from a live class.
//
// Union Processing Flow:
//  1. Union() enqueues the pair on a FIFO worklist.
//  2. The worklist is drained in a loop. Each step normalizes both sides,
//     allocates a fresh class over the shared slots and merges both sides
//     into it.
//  3. Merging repairs every node that referenced the merged class. Repairs
//     that need another union (a slot that has become redundant, a node that
//     now collides with an existing one) enqueue it instead of recursing.
//  4. Union() returns once the worklist is empty. Only then do the invariants
//     hold again.
//
// CRITICAL PATTERNS:
//
// Single owner: an EGraph is not safe for concurrent use. One goroutine owns
// it for the lifetime of a run.
//
// Deterministic iteration: every walk over a Go map that can influence the
// result goes through sorted keys, so two runs over the same input allocate
// the same ids and slots.
//
// Rejected self-unions: unioning a class with itself under a non-identity
// renaming is logged at Warn and ignored. Callers must not rely on it.
package egraph
