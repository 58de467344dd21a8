package egraph

import (
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// Union asserts that l and r denote the same term and merges their classes,
// along with everything the merge forces. It reports whether any classes
// were merged.
//
// A union of a class with itself under a different renaming is rejected:
// it is logged, counted in Stats, and leaves the graph unchanged.
func (g *EGraph) Union(l, r ir.AppliedID) bool {
	g.pending.Enqueue(l, r)
	return g.drain()
}

// drain processes the worklist until it is empty.
func (g *EGraph) drain() bool {
	merged := false
	for {
		p, ok := g.pending.TryDequeue()
		if !ok {
			return merged
		}
		if g.unionStep(p.l, p.r) {
			merged = true
		}
	}
}

// schedule defers a union until the current step has finished.
func (g *EGraph) schedule(l, r ir.AppliedID) {
	g.pending.Enqueue(l, r)
}

func (g *EGraph) unionStep(l, r ir.AppliedID) bool {
	l = g.Normalize(l)
	r = g.Normalize(r)

	if l.Equal(r) {
		return false
	}
	if l.ID == r.ID {
		g.stats.SelfUnionsRejected++
		g.logger.Warn("self-union rejected",
			"class", l.ID,
			"left", l.String(),
			"right", r.String(),
		)
		return false
	}

	// Rename both sides apart so that slots exclusive to one side can never
	// alias slots of the other.
	fresh := ir.BijectionFromFreshTo(ir.Union(l.Slots(), r.Slots()), g.src).Inverse()
	l = l.ApplySlotMap(fresh)
	r = r.ApplySlotMap(fresh)

	slots := ir.Intersect(l.Slots(), r.Slots())
	c := g.allocClass(slots)

	g.logger.Debug("union",
		"left", l.ID,
		"right", r.ID,
		"into", c,
		"slots", ir.FormatSlots(slots),
	)

	g.mergeIntoClass(l.ID, c, l.M)
	g.mergeIntoClass(r.ID, c, r.M)
	g.stats.Unions++
	return true
}

// mergeIntoClass moves every member of from into to and retires from.
// m maps the exposed slots of from to slots of to; images outside the
// exposed slots of to become redundant.
func (g *EGraph) mergeIntoClass(from, to ir.ID, m ir.SlotMap) {
	toSlots := g.classes[to].slots

	// 1. union-find entry from -> to, then back to one hop everywhere.
	g.unionfind[from] = ir.NewAppliedID(to, m.Inverse().RestrictTo(toSlots))
	g.fixUnionFind()

	// 2. move the members.
	src := g.classes[from]
	for _, key := range sortedKeys(src.nodes) {
		mem, _ := g.rawRemove(from, key)

		out := mem.bij.ComposePartial(m)
		for _, x := range mem.bij.Keys() {
			if !out.Contains(x) {
				out.Insert(x, g.src.Fresh())
			}
		}

		if _, dup := g.classes[to].nodes[key]; dup {
			// The other side already moved this shape in.
			continue
		}
		if owner, ok := g.hashcons[key]; ok && owner != to {
			g.schedule(g.Identity(to), g.memberOccurrence(owner, key, out))
		}
		g.rawAdd(to, mem.shape, out)
	}

	// 3. repair every node that references from.
	for _, u := range sortedUsages(src.usages) {
		g.repairUsage(u)
	}

	delete(g.classes, from)
}

// memberOccurrence returns the occurrence of class owner in the slot names of
// another member with the same shape key whose bijection is out.
func (g *EGraph) memberOccurrence(owner ir.ID, key string, out ir.SlotMap) ir.AppliedID {
	other := g.classes[owner].nodes[key]
	// other.bij^-1: owner slots -> shape, out: shape -> target slots.
	m := other.bij.Inverse().ComposePartial(out).RestrictTo(g.classes[owner].slots)
	return ir.NewAppliedID(owner, m)
}

// repairUsage re-normalizes the member recorded by u and either puts it back
// into its owner or schedules the unions its new form requires.
func (g *EGraph) repairUsage(u usage) {
	owner, ok := g.classes[u.owner]
	if !ok {
		return
	}
	mem, ok := g.rawRemove(u.owner, u.key)
	if !ok {
		return
	}
	norm := g.NormalizeNode(mem.node())
	normSlots := lang.Slots(norm)

	// The node may have lost slots its owner still exposes. Shrink the owner
	// by unioning it with an empty class over the remaining slots.
	if !ir.IsSubset(owner.slots, normSlots) {
		sub := ir.Intersect(owner.slots, normSlots)
		tmp := g.allocClass(sub)
		g.logger.Debug("slot reduction scheduled",
			"class", u.owner,
			"slots", ir.FormatSlots(owner.slots),
			"kept", ir.FormatSlots(sub),
		)
		g.schedule(g.Identity(u.owner), ir.NewAppliedID(tmp, ir.Identity(sub)))
	}

	if hit, ok := g.Lookup(norm); ok {
		g.schedule(g.Identity(u.owner), hit)
		return
	}
	sh := lang.ShapeOf(norm)
	g.rawAdd(u.owner, sh.Node, sh.Bij)
}

// fixUnionFind renormalizes every union-find entry to point one hop to a
// live class.
func (g *EGraph) fixUnionFind() {
	for id, a := range g.unionfind {
		for {
			next := g.Normalize(a)
			if next.Equal(a) {
				break
			}
			a = next
		}
		g.unionfind[id] = a
	}
}
