package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Graph is an e-graph with a parser that shares its slot source, so slot
// names in terms added through it refer to the same slots.
type Graph struct {
	*egraph.EGraph
	Parser *syntax.Parser
}

// NewGraph returns an empty graph that logs nowhere.
func NewGraph(tb testing.TB) *Graph {
	tb.Helper()
	g := egraph.New(egraph.WithLogger(QuietLogger()))
	return &Graph{EGraph: g, Parser: syntax.NewParser(g.SlotSource())}
}

// NewGraphWith returns a graph holding terms, and the class of each term.
func NewGraphWith(tb testing.TB, terms ...string) (*Graph, []ir.AppliedID) {
	tb.Helper()
	g := NewGraph(tb)
	ids := make([]ir.AppliedID, len(terms))
	for i, src := range terms {
		ids[i] = g.AddTerm(tb, src)
	}
	return g, ids
}

// AddTerm parses src and adds it. A parse error fails the test.
func (g *Graph) AddTerm(tb testing.TB, src string) ir.AppliedID {
	tb.Helper()
	e, err := g.Parser.ParseExpr(src)
	require.NoError(tb, err, "parse %q", src)
	return g.AddExpr(e)
}

// Same reports whether the terms a and b are in one class. Both are added
// first.
func (g *Graph) Same(tb testing.TB, a, b string) bool {
	tb.Helper()
	return g.Equivalent(g.AddTerm(tb, a), g.AddTerm(tb, b))
}

// Best returns the smallest term of the class of a, printed with the
// parser's slot names.
func (g *Graph) Best(a ir.AppliedID) string {
	return g.Parser.PrintTerm(egraph.NewExtractor(g.EGraph).Extract(a))
}
