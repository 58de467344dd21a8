package pattern

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// Match is one way a pattern matches a class.
//
// Root is the matched class under its own slot names. Vars binds every
// pattern variable to an occurrence, and Slots maps every slot named by the
// pattern to the graph slot it matched. Binders met while matching are
// fresh slots, so two matches never share a binder by accident.
type Match struct {
	Root  ir.AppliedID
	Vars  map[string]ir.AppliedID
	Slots ir.SlotMap
}

type binding struct {
	vars  map[string]ir.AppliedID
	slots ir.SlotMap
}

func (b binding) clone() binding {
	vars := make(map[string]ir.AppliedID, len(b.vars))
	for k, v := range b.vars {
		vars[k] = v
	}
	return binding{vars: vars, slots: b.slots.Clone()}
}

// Search returns every match of p in g, ordered by root class. p must not
// contain a Subst.
func Search(g *egraph.EGraph, p Pattern) []Match {
	var out []Match
	for _, id := range g.Classes() {
		out = append(out, SearchClass(g, p, id)...)
	}
	return out
}

// SearchClass returns the matches of p rooted at class id.
func SearchClass(g *egraph.EGraph, p Pattern, id ir.ID) []Match {
	if HasSubst(p) {
		panic(fmt.Sprintf("pattern: cannot search for %v: it contains a substitution", p))
	}
	root := g.Identity(g.Find(id))
	start := binding{vars: make(map[string]ir.AppliedID), slots: ir.NewSlotMap()}

	var out []Match
	for _, b := range match(g, p, root, start) {
		out = append(out, Match{Root: root, Vars: b.vars, Slots: b.slots})
	}
	return out
}

func match(g *egraph.EGraph, p Pattern, a ir.AppliedID, b binding) []binding {
	a = g.Normalize(a)
	switch p := p.(type) {
	case Var:
		if prev, ok := b.vars[p.Name]; ok {
			if prev.Equal(a) {
				return []binding{b}
			}
			return nil
		}
		nb := b.clone()
		nb.vars[p.Name] = a
		return []binding{nb}

	case *Node:
		var out []binding
		for _, m := range g.Members(a.ID) {
			if !lang.SameOperator(p.Node, m.Shape) {
				continue
			}
			n := lang.RefreshPrivate(m.Node(), g.SlotSource())
			n = lang.ApplySlotMapPartial(n, a.M)

			nb, ok := bindSlots(b, lang.OwnSlotOccurrences(p.Node), lang.OwnSlotOccurrences(n))
			if !ok {
				continue
			}
			states := []binding{nb}
			for i, child := range lang.AppliedIDs(n) {
				var next []binding
				for _, s := range states {
					next = append(next, match(g, p.Children[i], child, s)...)
				}
				states = next
				if len(states) == 0 {
					break
				}
			}
			out = append(out, states...)
		}
		return out

	default:
		panic(fmt.Sprintf("pattern: cannot match %v", p))
	}
}

// bindSlots extends b so that every pattern slot in ps maps to the graph
// slot at the same position in gs. Bindings are injective.
func bindSlots(b binding, ps, gs []ir.Slot) (binding, bool) {
	nb := b.clone()
	for i, p := range ps {
		if cur, ok := nb.slots.Get(p); ok {
			if cur != gs[i] {
				return binding{}, false
			}
			continue
		}
		if slices.Contains(nb.slots.Values(), gs[i]) {
			return binding{}, false
		}
		nb.slots.Insert(p, gs[i])
	}
	return nb, true
}

// slots returns every slot the match mentions.
func (m Match) slots() *set.Set[ir.Slot] {
	out := m.Root.Slots()
	for _, name := range m.varNames() {
		out = ir.Union(out, m.Vars[name].Slots())
	}
	return ir.Union(out, m.Slots.ValueSet())
}

func (m Match) varNames() []string {
	names := make([]string, 0, len(m.Vars))
	for name := range m.Vars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rename re-expresses m in the pattern's own slot names: every graph slot
// bound to a pattern slot takes that slot's name. Other graph slots that
// happen to use one of patternSlots are moved to fresh slots from src.
func (m Match) Rename(patternSlots *set.Set[ir.Slot], src *ir.SlotSource) Match {
	ren := ir.NewSlotMap()
	inv := m.Slots.Inverse()
	for _, s := range ir.SortedSlots(m.slots()) {
		switch p, bound := inv.Get(s); {
		case bound:
			ren.Insert(s, p)
		case patternSlots.Contains(s):
			ren.Insert(s, src.Fresh())
		default:
			ren.Insert(s, s)
		}
	}
	return m.apply(ren)
}

// Canonical renames every slot of m that is not a slot of Root to a
// placeholder numbered by first occurrence. Two matches that differ only in
// the names of fresh binders have equal canonical forms.
func (m Match) Canonical() Match {
	ren := ir.Identity(m.Root.Slots())
	next := ir.Slot(-1)
	visit := func(slots []ir.Slot) {
		for _, s := range slots {
			if !ren.Contains(s) {
				ren.Insert(s, next)
				next--
			}
		}
	}
	for _, name := range m.varNames() {
		visit(m.Vars[name].M.Values())
	}
	visit(m.Slots.Values())
	return m.apply(ren)
}

// Hash identifies the match for de-duplication across iterations.
func (m Match) Hash(ruleHash string) string {
	c := m.Canonical()
	return ir.MatchHash(ruleHash, c.Root, c.Vars, c.Slots)
}

func (m Match) apply(ren ir.SlotMap) Match {
	vars := make(map[string]ir.AppliedID, len(m.Vars))
	for name, a := range m.Vars {
		vars[name] = a.ApplySlotMap(ren)
	}
	return Match{
		Root:  m.Root.ApplySlotMap(ren),
		Vars:  vars,
		Slots: m.Slots.Compose(ren),
	}
}
