package pattern

import (
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// Instantiate builds p into g and returns the occurrence of the result.
// Variables resolve through vars; a variable missing from vars panics.
//
// A Subst extracts the smallest term of its body and replaces every
// subterm that is the occurrence of its target in that term literally.
func Instantiate(g *egraph.EGraph, p Pattern, vars map[string]ir.AppliedID) ir.AppliedID {
	switch p := p.(type) {
	case *Node:
		ids := make([]ir.AppliedID, len(p.Children))
		for i, c := range p.Children {
			ids[i] = Instantiate(g, c, vars)
		}
		return g.Add(lang.WithAppliedIDs(p.Node, ids))
	case Var:
		a, ok := vars[p.Name]
		if !ok {
			panic(fmt.Sprintf("pattern: variable %s is not bound", p.Name))
		}
		return a
	case *Subst:
		b := Instantiate(g, p.Body, vars)
		x := Instantiate(g, p.Target, vars)
		t := Instantiate(g, p.Replacement, vars)
		return doSubst(g, g.Extract(b), x, t)
	default:
		panic(fmt.Sprintf("pattern: unknown pattern %T", p))
	}
}

// doSubst inserts e with every subterm whose occurrence is x replaced by t.
func doSubst(g *egraph.EGraph, e lang.RecExpr, x, t ir.AppliedID) ir.AppliedID {
	ids := make([]ir.AppliedID, len(e.Children))
	for i, c := range e.Children {
		ids[i] = doSubst(g, c, x, t)
	}
	a := g.Add(lang.WithAppliedIDs(e.Node, ids))
	if a.Equal(g.Normalize(x)) {
		return t
	}
	return a
}

// Lookup returns the occurrence of the ground pattern p if every node of it
// is already in g. It never mutates g.
func Lookup(g *egraph.EGraph, p Pattern) (ir.AppliedID, bool) {
	return g.LookupExpr(ToExpr(p))
}
