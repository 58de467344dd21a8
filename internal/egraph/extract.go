package egraph

import (
	"fmt"
	"math"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// Extractor picks the smallest term of every class, counting nodes.
//
// The cost table is computed once by NewExtractor. Mutating the graph
// afterwards invalidates it; build a new Extractor.
type Extractor struct {
	g    *EGraph
	cost map[ir.ID]int
	best map[ir.ID]string
}

// NewExtractor computes the AST-size cost of every live class.
func NewExtractor(g *EGraph) *Extractor {
	x := &Extractor{
		g:    g,
		cost: make(map[ir.ID]int),
		best: make(map[ir.ID]string),
	}
	ids := g.Classes()
	for changed := true; changed; {
		changed = false
		for _, id := range ids {
			c := g.classes[id]
			for _, key := range sortedKeys(c.nodes) {
				cost, ok := x.nodeCost(c.nodes[key].shape)
				if !ok {
					continue
				}
				if old, seen := x.cost[id]; !seen || cost < old {
					x.cost[id] = cost
					x.best[id] = key
					changed = true
				}
			}
		}
	}
	return x
}

func (x *Extractor) nodeCost(shape lang.ENode) (int, bool) {
	total := 1
	for _, child := range lang.IDs(shape) {
		c, ok := x.cost[x.g.Find(child)]
		if !ok {
			return 0, false
		}
		if total > math.MaxInt-c {
			return math.MaxInt, true
		}
		total += c
	}
	return total, true
}

// Cost returns the size of the smallest term of the class of id.
func (x *Extractor) Cost(id ir.ID) (int, bool) {
	c, ok := x.cost[x.g.Find(id)]
	return c, ok
}

// Extract returns the smallest term of a's class, with the class's exposed
// slots renamed to the slots of a. Binders in the result are fresh, so they
// never capture a slot of a. It panics if the class has no finite term,
// which only happens for classes built without any leaf.
func (x *Extractor) Extract(a ir.AppliedID) lang.RecExpr {
	a = x.g.Normalize(a)
	key, ok := x.best[a.ID]
	if !ok {
		panic(fmt.Sprintf("egraph: class %v has no extractable term", a.ID))
	}
	m := x.g.classes[a.ID].nodes[key]

	n := lang.ApplySlotMapPartial(m.shape, m.bij)
	n = lang.RefreshPrivate(n, x.g.src)
	n = lang.ApplySlotMapPartial(n, a.M)

	children := lang.AppliedIDs(n)
	out := lang.RecExpr{
		Node:     lang.WithAppliedIDs(n, make([]ir.AppliedID, len(children))),
		Children: make([]lang.RecExpr, len(children)),
	}
	for i, child := range children {
		out.Children[i] = x.Extract(child)
	}
	return out
}

// Extract is shorthand for NewExtractor(g).Extract(a).
func (g *EGraph) Extract(a ir.AppliedID) lang.RecExpr {
	return NewExtractor(g).Extract(a)
}
