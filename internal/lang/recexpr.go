package lang

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// RecExpr is a term tree. The child references of Node are placeholders;
// Children holds the actual subterms in the same order. Slots in a RecExpr
// are names chosen by whoever built the term.
type RecExpr struct {
	Node     ENode
	Children []RecExpr
}

// VarExpr builds the term $s.
func VarExpr(s ir.Slot) RecExpr {
	return RecExpr{Node: NewVar(s)}
}

// LamExpr builds the term (lam $s body).
func LamExpr(s ir.Slot, body RecExpr) RecExpr {
	return RecExpr{Node: NewLam(s, ir.AppliedID{}), Children: []RecExpr{body}}
}

// AppExpr builds the term (app f a).
func AppExpr(f, a RecExpr) RecExpr {
	return RecExpr{Node: NewApp(ir.AppliedID{}, ir.AppliedID{}), Children: []RecExpr{f, a}}
}

// LetExpr builds the term (let $s value body).
func LetExpr(s ir.Slot, value, body RecExpr) RecExpr {
	return RecExpr{Node: NewLet(s, ir.AppliedID{}, ir.AppliedID{}), Children: []RecExpr{value, body}}
}

// NumExpr builds an integer literal.
func NumExpr(v int64) RecExpr {
	return RecExpr{Node: NewNum(v)}
}

// SymExpr builds a named constant.
func SymExpr(name string) RecExpr {
	return RecExpr{Node: NewSymbol(name)}
}

// AddExpr builds the term (add a b).
func AddExpr(a, b RecExpr) RecExpr {
	return RecExpr{Node: NewAdd(ir.AppliedID{}, ir.AppliedID{}), Children: []RecExpr{a, b}}
}

// Size returns the number of nodes in e.
func (e RecExpr) Size() int {
	n := 1
	for _, c := range e.Children {
		n += c.Size()
	}
	return n
}

// FreeSlots returns the slots of e not bound by a binder inside e.
func (e RecExpr) FreeSlots() *set.Set[ir.Slot] {
	ids := make([]ir.AppliedID, len(e.Children))
	for i, c := range e.Children {
		ids[i] = ir.AppliedID{M: ir.Identity(c.FreeSlots())}
	}
	return Slots(WithAppliedIDs(e.Node, ids))
}

// String renders e with slots printed as "$<n>".
func (e RecExpr) String() string {
	return e.Format(ir.Slot.String)
}

// Format renders e as an s-expression, printing slots through name.
func (e RecExpr) Format(name func(ir.Slot) string) string {
	var b strings.Builder
	e.format(&b, name)
	return b.String()
}

func (e RecExpr) format(b *strings.Builder, name func(ir.Slot) string) {
	child := func(i int) {
		b.WriteByte(' ')
		if i < len(e.Children) {
			e.Children[i].format(b, name)
		} else {
			b.WriteString("?")
		}
	}
	switch n := e.Node.(type) {
	case *Var:
		b.WriteString(name(n.Slot))
	case *Num:
		b.WriteString(strconv.FormatInt(n.Value, 10))
	case *Symbol:
		b.WriteString(n.Name)
	case *Lam:
		b.WriteString("(lam ")
		b.WriteString(name(n.Binder))
		child(0)
		b.WriteByte(')')
	case *Let:
		b.WriteString("(let ")
		b.WriteString(name(n.Binder))
		child(0)
		child(1)
		b.WriteByte(')')
	default:
		b.WriteByte('(')
		b.WriteString(n.Kind().String())
		for i := range Arity(n) {
			child(i)
		}
		b.WriteByte(')')
	}
}
