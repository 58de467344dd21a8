package egraph

import "github.com/marcusrossel/slotted-egraphs/internal/ir"

// pendingUnion is one deferred union request.
type pendingUnion struct {
	l, r ir.AppliedID
}

// unionQueue is the FIFO worklist of unions that merges have scheduled.
//
// The queue is unbounded so that a cascade of repairs never blocks. It is
// not synchronized: only the goroutine that owns the EGraph touches it.
type unionQueue struct {
	items []pendingUnion
}

func newUnionQueue() *unionQueue {
	return &unionQueue{items: make([]pendingUnion, 0, 16)}
}

// Enqueue adds a union to the back of the queue.
func (q *unionQueue) Enqueue(l, r ir.AppliedID) {
	q.items = append(q.items, pendingUnion{l: l, r: r})
}

// TryDequeue removes and returns the front union.
// Returns false if the queue is empty.
func (q *unionQueue) TryDequeue() (pendingUnion, bool) {
	if len(q.items) == 0 {
		return pendingUnion{}, false
	}
	p := q.items[0]

	// Drop the slot map storage held by the backing array.
	q.items[0] = pendingUnion{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// Len returns the number of pending unions.
func (q *unionQueue) Len() int {
	return len(q.items)
}
