package egraph

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

func sym(name string) lang.RecExpr { return lang.SymExpr(name) }

func app(f, a lang.RecExpr) lang.RecExpr { return lang.AppExpr(f, a) }

func v(s ir.Slot) lang.RecExpr { return lang.VarExpr(s) }

func requireConsistent(t *testing.T, g *EGraph) {
	t.Helper()
	require.NoError(t, g.CheckInvariants())
}

func TestAddHashConsesRenamings(t *testing.T) {
	g := New()
	src := g.SlotSource()
	x, y := src.Fresh(), src.Fresh()

	vx := g.AddExpr(v(x))
	vy := g.AddExpr(v(y))

	assert.Equal(t, vx.ID, vy.ID, "variables share one class")
	assert.False(t, vx.Equal(vy), "but under different renamings")
	assert.Equal(t, []ir.Slot{x}, vx.M.Values())
	assert.Equal(t, []ir.Slot{y}, vy.M.Values())
	assert.Equal(t, 1, g.NumClasses())

	again := g.AddExpr(v(x))
	assert.True(t, again.Equal(vx), "insertion is idempotent")
	requireConsistent(t, g)
}

func TestLookupIsReadOnly(t *testing.T) {
	g := New()
	g.AddExpr(sym("f"))

	_, ok := g.LookupExpr(sym("g"))
	assert.False(t, ok)
	_, ok = g.LookupExpr(app(sym("f"), sym("g")))
	assert.False(t, ok, "absent child means absent term")
	assert.Equal(t, 1, g.NumClasses())

	a, ok := g.LookupExpr(sym("f"))
	require.True(t, ok)
	assert.Equal(t, 0, a.M.Len())
}

// (λs.s) (λt.t): the two abstractions are alpha-equivalent, so they are one
// class from the moment they are inserted. The later union is a no-op.
func TestLambdaScenario(t *testing.T) {
	g := New()
	src := g.SlotSource()
	s, tt := src.Fresh(), src.Fresh()

	ls := lang.LamExpr(s, v(s))
	lt := lang.LamExpr(tt, v(tt))
	root := g.AddExpr(app(ls, lt))

	assert.Equal(t, 3, g.NumClasses(), "var, lam, app")

	aid1, ok := g.LookupExpr(ls)
	require.True(t, ok)
	aid2, ok := g.LookupExpr(lt)
	require.True(t, ok)
	assert.True(t, aid1.Equal(aid2))

	before := g.Stats()
	assert.False(t, g.Union(aid1, aid2))
	assert.Equal(t, before, g.Stats(), "no state change")

	lam := g.Find(aid1.ID)
	members := g.Members(lam)
	require.Len(t, members, 1)
	shape, ok := members[0].Shape.(*lang.Lam)
	require.True(t, ok)
	assert.Equal(t, ir.Slot(0), shape.Binder)
	assert.Equal(t, []ir.Slot{0}, shape.Body.M.Values(), "the body uses the binder")
	assert.Equal(t, 0, g.Slots(lam).Size())

	appMembers := g.Members(g.Find(root.ID))
	require.Len(t, appMembers, 1)
	ids := lang.IDs(appMembers[0].Shape)
	assert.Equal(t, []ir.ID{lam, lam}, ids, "both children normalize to the one lambda class")
	requireConsistent(t, g)
}

func TestUnionPropagatesCongruence(t *testing.T) {
	g := New()
	f := g.AddExpr(sym("f"))
	gg := g.AddExpr(sym("g"))
	fa := g.AddExpr(app(sym("f"), lang.NumExpr(1)))
	ga := g.AddExpr(app(sym("g"), lang.NumExpr(1)))
	require.Equal(t, 5, g.NumClasses())
	require.False(t, g.Equivalent(fa, ga))

	assert.True(t, g.Union(f, gg))

	assert.True(t, g.Equivalent(f, gg))
	assert.True(t, g.Equivalent(fa, ga), "congruence: f = g implies (f 1) = (g 1)")
	assert.Equal(t, 3, g.NumClasses())
	assert.Equal(t, 2, g.Stats().Unions)
	requireConsistent(t, g)
}

func TestUnionIsIdempotent(t *testing.T) {
	g := New()
	f := g.AddExpr(sym("f"))
	gg := g.AddExpr(sym("g"))

	require.True(t, g.Union(f, gg))
	classes, nodes, stats := g.NumClasses(), g.NumNodes(), g.Stats()

	assert.False(t, g.Union(f, gg))
	assert.False(t, g.Union(gg, f))
	assert.Equal(t, classes, g.NumClasses())
	assert.Equal(t, nodes, g.NumNodes())
	assert.Equal(t, stats, g.Stats())
}

func TestUnionIsSymmetric(t *testing.T) {
	terms := []lang.RecExpr{
		sym("f"),
		sym("g"),
		sym("h"),
		app(sym("f"), sym("h")),
		app(sym("g"), sym("h")),
		app(sym("h"), app(sym("f"), sym("h"))),
		app(sym("h"), app(sym("g"), sym("h"))),
	}

	partition := func(swap bool) [][]bool {
		g := New()
		ids := make([]ir.AppliedID, len(terms))
		for i, e := range terms {
			ids[i] = g.AddExpr(e)
		}
		if swap {
			g.Union(ids[1], ids[0])
		} else {
			g.Union(ids[0], ids[1])
		}
		requireConsistent(t, g)

		out := make([][]bool, len(ids))
		for i := range ids {
			out[i] = make([]bool, len(ids))
			for j := range ids {
				out[i][j] = g.Equivalent(ids[i], ids[j])
			}
		}
		return out
	}

	assert.Equal(t, partition(false), partition(true))
	assert.True(t, partition(false)[5][6], "nested congruence")
}

func TestSelfUnionRejected(t *testing.T) {
	var buf bytes.Buffer
	g := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	src := g.SlotSource()
	x, y := src.Fresh(), src.Fresh()

	vx := g.AddExpr(v(x))
	vy := g.AddExpr(v(y))

	assert.False(t, g.Union(vx, vy))
	assert.Equal(t, 1, g.Stats().SelfUnionsRejected)
	assert.Equal(t, 1, g.NumClasses())
	assert.False(t, g.Equivalent(vx, vy))
	assert.Contains(t, buf.String(), "self-union rejected")
	requireConsistent(t, g)
}

func TestUnionUnderRenaming(t *testing.T) {
	g := New()
	src := g.SlotSource()
	x, y, z, w := src.Fresh(), src.Fresh(), src.Fresh(), src.Fresh()

	fx := g.AddExpr(app(sym("f"), v(x)))
	gx := g.AddExpr(app(sym("g"), v(x)))
	gy := g.AddExpr(app(sym("g"), v(y)))
	require.Equal(t, gx.ID, gy.ID)

	// f(x) = g(x)
	require.True(t, g.Union(fx, gx))

	fz := g.AddExpr(app(sym("f"), v(z)))
	gz := g.AddExpr(app(sym("g"), v(z)))
	gw := g.AddExpr(app(sym("g"), v(w)))
	assert.True(t, g.Equivalent(fz, gz), "f(z) = g(z) follows by renaming")
	assert.False(t, g.Equivalent(fz, gw), "but f(z) != g(w)")
	requireConsistent(t, g)
}

func TestUnionMakesSlotsRedundant(t *testing.T) {
	g := New()
	src := g.SlotSource()
	x, y, p, q := src.Fresh(), src.Fresh(), src.Fresh(), src.Fresh()

	sum := g.AddExpr(lang.AddExpr(v(x), v(y)))
	zero := g.AddExpr(lang.NumExpr(0))
	outer := g.AddExpr(lang.AddExpr(lang.AddExpr(v(x), v(y)), lang.NumExpr(5)))
	require.Equal(t, 2, g.Slots(outer.ID).Size())

	// x + y = 0 for all x, y: the class no longer depends on either slot.
	require.True(t, g.Union(sum, zero))

	assert.Equal(t, 0, g.Slots(g.Find(sum.ID)).Size())
	assert.Equal(t, 0, g.Slots(g.Find(outer.ID)).Size(), "the user sheds the slots too")

	other := g.AddExpr(lang.AddExpr(v(p), v(q)))
	assert.True(t, g.Equivalent(other, zero), "p + q hits the same shape")

	plain := g.AddExpr(lang.AddExpr(lang.NumExpr(0), lang.NumExpr(5)))
	assert.True(t, g.Equivalent(plain, outer))
	requireConsistent(t, g)
}

func TestRebuildFixesShapeCollision(t *testing.T) {
	g := New()
	f := g.AddExpr(sym("f"))
	gg := g.AddExpr(sym("g"))

	// Out-of-band mutation: give g's class a copy of f's node.
	sh := lang.ShapeOf(lang.NewSymbol("f"))
	g.rawAdd(gg.ID, sh.Node, sh.Bij)
	require.Error(t, g.CheckInvariants())

	assert.Equal(t, 1, g.Rebuild())
	assert.True(t, g.Equivalent(f, gg))
	requireConsistent(t, g)
	assert.Equal(t, 0, g.Rebuild(), "fixpoint reached")
}

func TestRebuildFixesRedundantSlots(t *testing.T) {
	g := New()
	src := g.SlotSource()
	x, y := src.Fresh(), src.Fresh()
	sum := g.AddExpr(lang.AddExpr(v(x), v(y)))

	// Out-of-band mutation: a member that mentions none of the class slots.
	sh := lang.ShapeOf(lang.NewNum(7))
	g.rawAdd(sum.ID, sh.Node, sh.Bij)

	err := g.CheckInvariants()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))

	assert.GreaterOrEqual(t, g.Rebuild(), 1)
	assert.Equal(t, 0, g.Slots(g.Find(sum.ID)).Size())
	seven, ok := g.LookupExpr(lang.NumExpr(7))
	require.True(t, ok)
	assert.True(t, g.Equivalent(seven, sum))
	requireConsistent(t, g)
}

func TestCheckInvariantsReportsEveryViolation(t *testing.T) {
	g := New()
	g.AddExpr(sym("f"))
	gg := g.AddExpr(sym("g"))

	sh := lang.ShapeOf(lang.NewSymbol("f"))
	g.rawAdd(gg.ID, sh.Node, sh.Bij)
	delete(g.hashcons, `(sym "g")`)

	err := g.CheckInvariants()
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.GreaterOrEqual(t, len(merr.Errors), 2)
}

func TestNormalizeUnknownClassPanics(t *testing.T) {
	g := New()
	assert.Panics(t, func() { g.Normalize(ir.NewAppliedID(42, ir.NewSlotMap())) })
	assert.Panics(t, func() { g.Members(42) })
}

func TestWithSlotSource(t *testing.T) {
	src := ir.NewSlotSourceAt(1000)
	g := New(WithSlotSource(src))
	a := g.AddExpr(v(src.Fresh()))
	for _, s := range g.Slots(a.ID).Slice() {
		assert.Greater(t, int(s), 1000)
	}
	assert.Same(t, src, g.SlotSource())
}

func TestUnionQueueFIFO(t *testing.T) {
	q := newUnionQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok)

	for i := range 3 {
		q.Enqueue(ir.NewAppliedID(ir.ID(i), ir.NewSlotMap()), ir.NewAppliedID(ir.ID(i+10), ir.NewSlotMap()))
	}
	assert.Equal(t, 3, q.Len())
	for i := range 3 {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, ir.ID(i), p.l.ID)
		assert.Equal(t, ir.ID(i+10), p.r.ID)
	}
	assert.Equal(t, 0, q.Len())
}
