package lang

import (
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// The three functions below are the only place that knows which fields of a
// variant are slots and which are child references. Every operation in
// derived.go and shape.go is built on them.
//
// All three return non-deduplicated occurrences in textual order. Writing
// through the returned pointers mutates n.

// allSlotOccurrences returns every slot occurrence, bound ones included.
func allSlotOccurrences(n ENode) []*ir.Slot {
	switch n := n.(type) {
	case *Var:
		return []*ir.Slot{&n.Slot}
	case *Lam:
		out := []*ir.Slot{&n.Binder}
		return append(out, n.Body.M.ValuePtrs()...)
	case *App:
		return append(n.Fun.M.ValuePtrs(), n.Arg.M.ValuePtrs()...)
	case *Let:
		out := []*ir.Slot{&n.Binder}
		out = append(out, n.Value.M.ValuePtrs()...)
		return append(out, n.Body.M.ValuePtrs()...)
	case *Num, *Symbol:
		return nil
	case *Add:
		return append(n.Left.M.ValuePtrs(), n.Right.M.ValuePtrs()...)
	default:
		panic(fmt.Sprintf("lang: unknown node %T", n))
	}
}

// publicSlotOccurrences returns the occurrences visible outside the node:
// everything except binders and the body occurrences they bind.
func publicSlotOccurrences(n ENode) []*ir.Slot {
	switch n := n.(type) {
	case *Var:
		return []*ir.Slot{&n.Slot}
	case *Lam:
		return without(n.Body.M.ValuePtrs(), n.Binder)
	case *App:
		return append(n.Fun.M.ValuePtrs(), n.Arg.M.ValuePtrs()...)
	case *Let:
		return append(n.Value.M.ValuePtrs(), without(n.Body.M.ValuePtrs(), n.Binder)...)
	case *Num, *Symbol:
		return nil
	case *Add:
		return append(n.Left.M.ValuePtrs(), n.Right.M.ValuePtrs()...)
	default:
		panic(fmt.Sprintf("lang: unknown node %T", n))
	}
}

// appliedIDOccurrences returns the child references in textual order.
func appliedIDOccurrences(n ENode) []*ir.AppliedID {
	switch n := n.(type) {
	case *Var, *Num, *Symbol:
		return nil
	case *Lam:
		return []*ir.AppliedID{&n.Body}
	case *App:
		return []*ir.AppliedID{&n.Fun, &n.Arg}
	case *Let:
		return []*ir.AppliedID{&n.Value, &n.Body}
	case *Add:
		return []*ir.AppliedID{&n.Left, &n.Right}
	default:
		panic(fmt.Sprintf("lang: unknown node %T", n))
	}
}

// Clone returns a deep copy of n.
func Clone(n ENode) ENode {
	switch n := n.(type) {
	case *Var:
		return &Var{Slot: n.Slot}
	case *Lam:
		return &Lam{Binder: n.Binder, Body: n.Body.Clone()}
	case *App:
		return &App{Fun: n.Fun.Clone(), Arg: n.Arg.Clone()}
	case *Let:
		return &Let{Binder: n.Binder, Value: n.Value.Clone(), Body: n.Body.Clone()}
	case *Num:
		return &Num{Value: n.Value}
	case *Symbol:
		return &Symbol{Name: n.Name}
	case *Add:
		return &Add{Left: n.Left.Clone(), Right: n.Right.Clone()}
	default:
		panic(fmt.Sprintf("lang: unknown node %T", n))
	}
}

func without(ptrs []*ir.Slot, bound ir.Slot) []*ir.Slot {
	out := ptrs[:0]
	for _, p := range ptrs {
		if *p != bound {
			out = append(out, p)
		}
	}
	return out
}
