package rewrite

import (
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
)

func pv(name string) pattern.Pattern { return pattern.PVar(name) }

func lamP(s ir.Slot, body pattern.Pattern) pattern.Pattern {
	return pattern.NewNode(lang.NewLam(s, ir.AppliedID{}), body)
}

func appP(f, a pattern.Pattern) pattern.Pattern {
	return pattern.NewNode(lang.NewApp(ir.AppliedID{}, ir.AppliedID{}), f, a)
}

func letP(s ir.Slot, value, body pattern.Pattern) pattern.Pattern {
	return pattern.NewNode(lang.NewLet(s, ir.AppliedID{}, ir.AppliedID{}), value, body)
}

func addP(a, b pattern.Pattern) pattern.Pattern {
	return pattern.NewNode(lang.NewAdd(ir.AppliedID{}, ir.AppliedID{}), a, b)
}

func varP(s ir.Slot) pattern.Pattern { return pattern.NewNode(lang.NewVar(s)) }

func symP(name string) pattern.Pattern { return pattern.NewNode(lang.NewSymbol(name)) }

func mapP(f, xs pattern.Pattern) pattern.Pattern { return appP(appP(symP("map"), f), xs) }

func slideP(sz, sp pattern.Pattern) pattern.Pattern { return appP(appP(symP("slide"), sz), sp) }

func transposeP(x pattern.Pattern) pattern.Pattern { return appP(symP("transpose"), x) }

// RiseRules returns the lambda-calculus and array rewrites of the RISE
// benchmark in application order. Beta reduction introduces a let, and
// the let rules push it down until it meets its variable.
func RiseRules() []*Rule {
	const x, y = ir.Slot(1), ir.Slot(2)
	free := func(v string, s ir.Slot) Condition { return Condition{Var: v, Slot: s, Free: true} }
	notFree := func(v string, s ir.Slot) Condition { return Condition{Var: v, Slot: s} }

	letApp := MustRule("let-app",
		letP(x, pv("?e"), appP(pv("?a"), pv("?b"))),
		appP(letP(x, pv("?e"), pv("?a")), letP(x, pv("?e"), pv("?b"))))
	letApp.AnyOf = []Condition{free("?a", x), free("?b", x)}

	letAdd := MustRule("let-add",
		letP(x, pv("?e"), addP(pv("?a"), pv("?b"))),
		addP(letP(x, pv("?e"), pv("?a")), letP(x, pv("?e"), pv("?b"))))
	letAdd.AnyOf = []Condition{free("?a", x), free("?b", x)}

	return []*Rule{
		MustRule("beta",
			appP(lamP(x, pv("?b")), pv("?t")),
			letP(x, pv("?t"), pv("?b"))),
		MustRule("eta",
			lamP(x, appP(pv("?b"), varP(x))),
			pv("?b"),
			notFree("?b", x)),
		MustRule("let-unused",
			letP(x, pv("?t"), pv("?b")),
			pv("?b"),
			notFree("?b", x)),
		MustRule("let-var-same",
			letP(x, pv("?e"), varP(x)),
			pv("?e")),
		letApp,
		MustRule("let-lam-diff",
			letP(x, pv("?e"), lamP(y, pv("?b"))),
			lamP(y, letP(x, pv("?e"), pv("?b"))),
			free("?b", x)),
		letAdd,
		MustRule("map-fusion",
			mapP(pv("?f"), mapP(pv("?g"), pv("?arg"))),
			mapP(lamP(x, appP(pv("?f"), appP(pv("?g"), varP(x)))), pv("?arg"))),
		MustRule("map-fission",
			appP(symP("map"), lamP(x, appP(pv("?f"), pv("?gx")))),
			lamP(y, mapP(pv("?f"), mapP(lamP(x, pv("?gx")), varP(y)))),
			notFree("?f", x)),
		MustRule("remove-transpose-pair",
			transposeP(transposeP(pv("?x"))),
			pv("?x")),
		MustRule("slide-before-map",
			appP(slideP(pv("?sz"), pv("?sp")), mapP(pv("?f"), pv("?y"))),
			appP(appP(symP("map"), appP(symP("map"), pv("?f"))), appP(slideP(pv("?sz"), pv("?sp")), pv("?y")))),
		MustRule("map-slide-before-transpose",
			transposeP(mapP(slideP(pv("?sz"), pv("?sp")), pv("?y"))),
			mapP(symP("transpose"), appP(slideP(pv("?sz"), pv("?sp")), transposeP(pv("?y"))))),
	}
}
