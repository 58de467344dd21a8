package egraph

import (
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
)

// Rebuild runs both repair passes until neither finds anything to fix.
// It returns the number of unions the passes performed.
//
// Union keeps the graph consistent on its own; Rebuild is the fallback
// after bulk operations, or after anything that mutated the graph without
// going through Union.
func (g *EGraph) Rebuild() int {
	total := 0
	for {
		n := g.fixRedundantSlots() + g.fixShapeCollisions()
		if n == 0 {
			return total
		}
		total += n
	}
}

// fixRedundantSlots finds classes that expose a slot some member does not
// mention, and shrinks each one by unioning it with an empty class over the
// slots all members share.
func (g *EGraph) fixRedundantSlots() int {
	n := 0
	for _, id := range g.Classes() {
		c, ok := g.classes[id]
		if !ok || len(c.nodes) == 0 {
			continue
		}
		common := c.slots.Copy()
		for _, m := range c.nodes {
			common = ir.Intersect(common, m.bij.ValueSet())
		}
		if ir.IsSubset(c.slots, common) {
			continue
		}

		tmp := g.allocClass(common)
		g.logger.Debug("redundant slots found",
			"class", id,
			"slots", ir.FormatSlots(c.slots),
			"kept", ir.FormatSlots(common),
		)
		if g.Union(g.Identity(id), ir.NewAppliedID(tmp, ir.Identity(common))) {
			n++
		}
	}
	return n
}

// fixShapeCollisions finds pairs of live classes that own the same shape and
// unions them.
func (g *EGraph) fixShapeCollisions() int {
	n := 0
	for {
		l, r, ok := g.findShapeCollision()
		if !ok {
			return n
		}
		if !g.Union(l, r) {
			// Rejected: the collision is within one class's symmetry. Stop
			// rather than spin on it.
			return n
		}
		n++
	}
}

// findShapeCollision returns the occurrences of two classes that share a
// shape, both expressed in the shape's canonical slots.
func (g *EGraph) findShapeCollision() (ir.AppliedID, ir.AppliedID, bool) {
	owner := make(map[string]ir.ID)
	for _, id := range g.Classes() {
		c := g.classes[id]
		for _, key := range sortedKeys(c.nodes) {
			first, seen := owner[key]
			if !seen {
				owner[key] = id
				continue
			}
			f := g.classes[first]
			b1 := f.nodes[key].bij
			b2 := c.nodes[key].bij
			l := ir.NewAppliedID(first, b1.Inverse().RestrictTo(f.slots))
			r := ir.NewAppliedID(id, b2.Inverse().RestrictTo(c.slots))
			return l, r, true
		}
	}
	return ir.AppliedID{}, ir.AppliedID{}, false
}
