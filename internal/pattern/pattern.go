// Package pattern reads and writes the e-graph through terms with holes.
//
// A Pattern is a concrete node whose children are patterns, a named
// variable, or an explicit substitution. Search matches a pattern against
// the graph; Instantiate builds a pattern into it.
package pattern

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// Pattern is a sealed sum type: *Node, Var or *Subst.
type Pattern interface {
	String() string
	pattern()
}

// Node matches or builds Node. The child references of Node are
// placeholders; Children holds the child patterns in the same order.
type Node struct {
	Node     lang.ENode
	Children []Pattern
}

// Var is a named hole such as "?b".
type Var struct {
	Name string
}

// Subst denotes Body with every occurrence of Target replaced by
// Replacement. Target is usually a variable reference such as $x, but any
// pattern is allowed. It may only appear on the building side of a rule.
type Subst struct {
	Body        Pattern
	Target      Pattern
	Replacement Pattern
}

func (*Node) pattern()  {}
func (Var) pattern()    {}
func (*Subst) pattern() {}

// NewNode builds a node pattern. len(children) must equal the arity of n.
func NewNode(n lang.ENode, children ...Pattern) *Node {
	if lang.Arity(n) != len(children) {
		panic(fmt.Sprintf("pattern: %v takes %d children, got %d", n.Kind(), lang.Arity(n), len(children)))
	}
	return &Node{Node: n, Children: children}
}

// PVar builds a pattern variable.
func PVar(name string) Var {
	return Var{Name: name}
}

// NewSubst builds a substitution pattern.
func NewSubst(body, target, replacement Pattern) *Subst {
	return &Subst{Body: body, Target: target, Replacement: replacement}
}

// NewSlotSubst builds a substitution of the variable s.
func NewSlotSubst(body Pattern, s ir.Slot, replacement Pattern) *Subst {
	return NewSubst(body, NewNode(lang.NewVar(s)), replacement)
}

func (p *Node) String() string  { return Format(p, ir.Slot.String) }
func (p Var) String() string    { return p.Name }
func (p *Subst) String() string { return Format(p, ir.Slot.String) }

// Vars returns the names of the pattern variables in p, sorted.
func Vars(p Pattern) []string {
	names := set.New[string](0)
	walk(p, func(q Pattern) {
		if v, ok := q.(Var); ok {
			names.Insert(v.Name)
		}
	})
	out := names.Slice()
	slices.Sort(out)
	return out
}

// Slots returns every slot named in p, bound or free.
func Slots(p Pattern) *set.Set[ir.Slot] {
	out := set.New[ir.Slot](0)
	walk(p, func(q Pattern) {
		if n, ok := q.(*Node); ok {
			for _, s := range lang.OwnSlotOccurrences(n.Node) {
				out.Insert(s)
			}
		}
	})
	return out
}

// HasSubst reports whether p contains a Subst.
func HasSubst(p Pattern) bool {
	found := false
	walk(p, func(q Pattern) {
		if _, ok := q.(*Subst); ok {
			found = true
		}
	})
	return found
}

func walk(p Pattern, f func(Pattern)) {
	f(p)
	switch p := p.(type) {
	case *Node:
		for _, c := range p.Children {
			walk(c, f)
		}
	case *Subst:
		walk(p.Body, f)
		walk(p.Target, f)
		walk(p.Replacement, f)
	}
}

// ToExpr converts a pattern without holes to a term. It panics on Var and
// Subst.
func ToExpr(p Pattern) lang.RecExpr {
	n, ok := p.(*Node)
	if !ok {
		panic(fmt.Sprintf("pattern: %v is not a ground pattern", p))
	}
	children := make([]lang.RecExpr, len(n.Children))
	for i, c := range n.Children {
		children[i] = ToExpr(c)
	}
	return lang.RecExpr{Node: lang.Clone(n.Node), Children: children}
}

// FromExpr converts a term to a pattern without holes.
func FromExpr(e lang.RecExpr) Pattern {
	children := make([]Pattern, len(e.Children))
	for i, c := range e.Children {
		children[i] = FromExpr(c)
	}
	return &Node{Node: lang.Clone(e.Node), Children: children}
}

// Format renders p as an s-expression, printing slots through name.
func Format(p Pattern, name func(ir.Slot) string) string {
	var b strings.Builder
	format(&b, p, name)
	return b.String()
}

func format(b *strings.Builder, p Pattern, name func(ir.Slot) string) {
	switch p := p.(type) {
	case Var:
		b.WriteString(p.Name)
	case *Subst:
		b.WriteString("(subst ")
		format(b, p.Body, name)
		b.WriteByte(' ')
		format(b, p.Target, name)
		b.WriteByte(' ')
		format(b, p.Replacement, name)
		b.WriteByte(')')
	case *Node:
		e := lang.RecExpr{Node: p.Node, Children: make([]lang.RecExpr, len(p.Children))}
		for i, c := range p.Children {
			e.Children[i] = lang.SymExpr(Format(c, name))
		}
		b.WriteString(e.Format(name))
	}
}
