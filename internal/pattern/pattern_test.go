package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

func lamP(s ir.Slot, body Pattern) Pattern {
	return NewNode(lang.NewLam(s, ir.AppliedID{}), body)
}

func appP(f, a Pattern) Pattern {
	return NewNode(lang.NewApp(ir.AppliedID{}, ir.AppliedID{}), f, a)
}

func addP(a, b Pattern) Pattern {
	return NewNode(lang.NewAdd(ir.AppliedID{}, ir.AppliedID{}), a, b)
}

func varP(s ir.Slot) Pattern { return NewNode(lang.NewVar(s)) }

func numP(n int64) Pattern { return NewNode(lang.NewNum(n)) }

func TestRoundTrip(t *testing.T) {
	terms := []lang.RecExpr{
		lang.NumExpr(3),
		lang.SymExpr("map"),
		lang.LamExpr(1, lang.AddExpr(lang.VarExpr(1), lang.VarExpr(2))),
		lang.LetExpr(4, lang.NumExpr(1), lang.AppExpr(lang.VarExpr(4), lang.SymExpr("f"))),
	}
	for _, e := range terms {
		t.Run(e.String(), func(t *testing.T) {
			back := ToExpr(FromExpr(e))
			assert.Equal(t, e.String(), back.String())
			assert.Equal(t, e.Size(), back.Size())
		})
	}
}

func TestToExprPanicsOnHoles(t *testing.T) {
	assert.Panics(t, func() { ToExpr(PVar("?x")) })
	assert.Panics(t, func() { ToExpr(appP(PVar("?f"), numP(1))) })
}

func TestNewNodeChecksArity(t *testing.T) {
	assert.Panics(t, func() { NewNode(lang.NewApp(ir.AppliedID{}, ir.AppliedID{}), numP(1)) })
}

func TestPatternString(t *testing.T) {
	p := appP(lamP(1, PVar("?b")), PVar("?t"))
	assert.Equal(t, "(app (lam $1 ?b) ?t)", p.String())
	assert.Equal(t, "(subst ?b $1 ?t)", NewSlotSubst(PVar("?b"), 1, PVar("?t")).String())
	assert.Equal(t, "(subst ?b ?x ?t)", NewSubst(PVar("?b"), PVar("?x"), PVar("?t")).String())
	assert.Equal(t, []string{"?b", "?t", "?x"}, Vars(NewSubst(PVar("?b"), PVar("?x"), PVar("?t"))))
	assert.Equal(t, []ir.Slot{3}, ir.SortedSlots(Slots(NewSlotSubst(PVar("?b"), 3, PVar("?t")))))

	names := map[ir.Slot]string{1: "$x"}
	assert.Equal(t, "(app (lam $x ?b) ?t)", Format(p, func(s ir.Slot) string { return names[s] }))

	assert.Equal(t, []string{"?b", "?t"}, Vars(p))
	assert.Equal(t, []ir.Slot{1}, ir.SortedSlots(Slots(p)))
	assert.False(t, HasSubst(p))
}

func TestInstantiate(t *testing.T) {
	g := egraph.New()
	one := g.AddExpr(lang.NumExpr(1))

	got := Instantiate(g, addP(PVar("?a"), numP(2)), map[string]ir.AppliedID{"?a": one})
	want, ok := g.LookupExpr(lang.AddExpr(lang.NumExpr(1), lang.NumExpr(2)))
	require.True(t, ok)
	assert.True(t, got.Equal(want))

	assert.Panics(t, func() {
		Instantiate(g, PVar("?missing"), map[string]ir.AppliedID{})
	})
}

func TestLookupGroundPattern(t *testing.T) {
	g := egraph.New()
	e := lang.AddExpr(lang.NumExpr(1), lang.NumExpr(2))

	_, ok := Lookup(g, FromExpr(e))
	assert.False(t, ok)

	a := g.AddExpr(e)
	b, ok := Lookup(g, FromExpr(e))
	require.True(t, ok)
	assert.True(t, a.Equal(b))
}

func TestBetaReductionThroughSubst(t *testing.T) {
	g := egraph.New()
	x := g.SlotSource().Fresh()

	// (app (lam $x (add $x 1)) 2)
	root := g.AddExpr(lang.AppExpr(
		lang.LamExpr(x, lang.AddExpr(lang.VarExpr(x), lang.NumExpr(1))),
		lang.NumExpr(2),
	))

	lhs := appP(lamP(1, PVar("?b")), PVar("?t"))
	rhs := NewSlotSubst(PVar("?b"), 1, PVar("?t"))

	matches := Search(g, lhs)
	require.Len(t, matches, 1)
	m := matches[0].Rename(ir.Union(Slots(lhs), Slots(rhs)), g.SlotSource())
	assert.True(t, m.Root.Equal(g.Normalize(root)))
	assert.Equal(t, []ir.Slot{1}, ir.SortedSlots(m.Vars["?b"].Slots()), "binder renamed to the pattern slot")

	reduced := Instantiate(g, rhs, m.Vars)
	g.Union(m.Root, reduced)

	want, ok := g.LookupExpr(lang.AddExpr(lang.NumExpr(2), lang.NumExpr(1)))
	require.True(t, ok)
	assert.True(t, g.Equivalent(root, want))
	require.NoError(t, g.CheckInvariants())
}

func TestSubstAvoidsCapture(t *testing.T) {
	g := egraph.New()
	src := g.SlotSource()
	y, z := src.Fresh(), src.Fresh()

	// (lam $y $z) with $z := $y. The binder must not capture the
	// substituted $y.
	body := g.AddExpr(lang.LamExpr(y, lang.VarExpr(z)))
	repl := g.AddExpr(lang.VarExpr(y))
	got := Instantiate(g, NewSlotSubst(PVar("?b"), z, PVar("?t")), map[string]ir.AppliedID{
		"?b": body,
		"?t": repl,
	})

	assert.Equal(t, body.ID, got.ID, "same shape as the input")
	assert.Equal(t, []ir.Slot{y}, ir.SortedSlots(got.Slots()), "result is free in $y")
	e := g.Extract(got)
	l, ok := e.Node.(*lang.Lam)
	require.True(t, ok)
	assert.NotEqual(t, y, l.Binder)
	assert.Equal(t, lang.VarExpr(y).String(), e.Children[0].String())
}

func TestSubstTargetIsAPattern(t *testing.T) {
	t.Run("variable bound to a slot occurrence", func(t *testing.T) {
		g := egraph.New()
		x := g.SlotSource().Fresh()
		body := g.AddExpr(lang.AddExpr(lang.VarExpr(x), lang.NumExpr(1)))

		got := Instantiate(g, NewSubst(PVar("?b"), PVar("?x"), PVar("?t")), map[string]ir.AppliedID{
			"?b": body,
			"?x": g.AddExpr(lang.VarExpr(x)),
			"?t": g.AddExpr(lang.NumExpr(2)),
		})

		want, ok := g.LookupExpr(lang.AddExpr(lang.NumExpr(2), lang.NumExpr(1)))
		require.True(t, ok)
		assert.True(t, got.Equal(want))
	})

	t.Run("ground subterm", func(t *testing.T) {
		g := egraph.New()
		// (app f (add 1 2)) with (add 1 2) := 3
		body := g.AddExpr(lang.AppExpr(lang.SymExpr("f"), lang.AddExpr(lang.NumExpr(1), lang.NumExpr(2))))

		got := Instantiate(g,
			NewSubst(PVar("?b"), addP(numP(1), numP(2)), numP(3)),
			map[string]ir.AppliedID{"?b": body})

		want, ok := g.LookupExpr(lang.AppExpr(lang.SymExpr("f"), lang.NumExpr(3)))
		require.True(t, ok)
		assert.True(t, got.Equal(want))
	})
}

func TestSearchRepeatedVariable(t *testing.T) {
	g := egraph.New()
	same := g.AddExpr(lang.AddExpr(lang.NumExpr(1), lang.NumExpr(1)))
	g.AddExpr(lang.AddExpr(lang.NumExpr(1), lang.NumExpr(2)))

	matches := Search(g, addP(PVar("?a"), PVar("?a")))
	require.Len(t, matches, 1)
	assert.Equal(t, same.ID, matches[0].Root.ID)
}

func TestSearchBindsSlotsInjectively(t *testing.T) {
	g := egraph.New()
	src := g.SlotSource()
	x, y := src.Fresh(), src.Fresh()
	g.AddExpr(lang.AddExpr(lang.VarExpr(x), lang.VarExpr(y)))
	g.AddExpr(lang.AddExpr(lang.VarExpr(x), lang.VarExpr(x)))

	distinct := Search(g, addP(varP(1), varP(2)))
	require.Len(t, distinct, 1)
	assert.Equal(t, 2, distinct[0].Slots.Len())

	shared := Search(g, addP(varP(1), varP(1)))
	require.Len(t, shared, 1)
	assert.Equal(t, 1, shared[0].Slots.Len())
}

func TestSearchEtaShape(t *testing.T) {
	g := egraph.New()
	src := g.SlotSource()
	x := src.Fresh()

	// (lam $x (app f $x)) and (lam $x (app $x $x))
	g.AddExpr(lang.LamExpr(x, lang.AppExpr(lang.SymExpr("f"), lang.VarExpr(x))))
	g.AddExpr(lang.LamExpr(x, lang.AppExpr(lang.VarExpr(x), lang.VarExpr(x))))

	eta := lamP(1, appP(PVar("?f"), varP(1)))
	matches := Search(g, eta)
	require.Len(t, matches, 2)

	free := 0
	for _, m := range matches {
		r := m.Rename(Slots(eta), src)
		if !r.Vars["?f"].Slots().Contains(1) {
			free++
		}
	}
	assert.Equal(t, 1, free, "only (app f $x) has ?f free of the binder")
}

func TestSearchPanicsOnSubst(t *testing.T) {
	g := egraph.New()
	g.AddExpr(lang.NumExpr(1))
	assert.Panics(t, func() { Search(g, NewSlotSubst(PVar("?b"), 1, PVar("?t"))) })
}

func TestMatchHashIgnoresFreshBinders(t *testing.T) {
	g := egraph.New()
	x := g.SlotSource().Fresh()
	g.AddExpr(lang.AppExpr(lang.LamExpr(x, lang.VarExpr(x)), lang.NumExpr(2)))

	lhs := appP(lamP(1, PVar("?b")), PVar("?t"))
	first := Search(g, lhs)
	second := Search(g, lhs)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.False(t, first[0].Slots.Equal(second[0].Slots), "each search draws fresh binders")
	assert.Equal(t, first[0].Hash("rule"), second[0].Hash("rule"))
	assert.NotEqual(t, first[0].Hash("rule"), first[0].Hash("other"))
}
