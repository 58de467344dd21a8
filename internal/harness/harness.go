package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/marcusrossel/slotted-egraphs/internal/compiler"
	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

// Harness holds the state of one scenario run.
type Harness struct {
	store  *store.Store
	graph  *egraph.EGraph
	parser *syntax.Parser
	logger *slog.Logger

	// terms maps the source text of every added term to its class.
	terms map[string]ir.AppliedID
	root  ir.AppliedID
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh graph and a fresh in-memory run log.
//
// Execution flow:
// 1. Load and compile the rule set
// 2. Parse and add the scenario term and every assertion term
// 3. Run the rules with a fixed run id
// 4. Evaluate assertions
// 5. Return result with pass/fail, run summary, and errors
//
// An error is returned when the scenario cannot run at all. Failed
// assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context that can cancel the rewrite run.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	rules, err := LoadRuleSet(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	g := egraph.New(egraph.WithLogger(logger))
	h := &Harness{
		store:  st,
		graph:  g,
		parser: syntax.NewParser(g.SlotSource()),
		logger: logger,
		terms:  make(map[string]ir.AppliedID),
	}

	if h.root, err = h.add(scenario.Term); err != nil {
		return nil, fmt.Errorf("term: %w", err)
	}
	if err := h.addAssertionTerms(scenario.Assertions); err != nil {
		return nil, err
	}

	opts := []rewrite.Option{
		rewrite.WithLogger(logger),
		rewrite.WithRecorder(st),
		rewrite.WithRunIDGenerator(rewrite.NewFixedGenerator(scenario.Name)),
	}
	if scenario.Iterations > 0 {
		opts = append(opts, rewrite.WithMaxIterations(scenario.Iterations))
	}
	runner, err := rewrite.NewRunner(rules, opts...)
	if err != nil {
		return nil, err
	}
	report, err := runner.Run(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Stop = report.Stop
	result.Iterations = len(report.Iterations)
	result.Classes = report.Classes
	result.Nodes = report.Nodes
	result.Extracted = h.print(g.Extract(h.root))
	if result.Firings, err = st.CountFirings(ctx, report.RunID); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(h, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// LoadRuleSet compiles the rules a scenario names: the builtin set first,
// then every rule directory, then the inline rules.
func LoadRuleSet(scenario *Scenario) ([]*rewrite.Rule, error) {
	var rules []*rewrite.Rule
	if scenario.Builtin == BuiltinRise {
		rules = append(rules, rewrite.RiseRules()...)
	}
	for _, dir := range scenario.Rules {
		rs, err := compiler.LoadRules(dir)
		if err != nil {
			return nil, fmt.Errorf("rules %s: %w", dir, err)
		}
		rules = append(rules, rs...)
	}
	for i, spec := range scenario.InlineRules {
		r, err := compiler.BuildRule(spec)
		if err != nil {
			return nil, fmt.Errorf("inline_rules[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (h *Harness) addAssertionTerms(assertions []Assertion) error {
	for i, a := range assertions {
		fields := []struct{ name, src string }{
			{"left", a.Left},
			{"right", a.Right},
			{"term", a.Term},
		}
		for _, f := range fields {
			if f.src == "" {
				continue
			}
			if _, err := h.add(f.src); err != nil {
				return fmt.Errorf("assertions[%d].%s: %w", i, f.name, err)
			}
		}
	}
	return nil
}

// add parses src and adds it to the graph. Adding the same source twice
// returns the first occurrence.
func (h *Harness) add(src string) (ir.AppliedID, error) {
	if a, ok := h.terms[src]; ok {
		return a, nil
	}
	e, err := h.parser.ParseExpr(src)
	if err != nil {
		return ir.AppliedID{}, err
	}
	a := h.graph.AddExpr(e)
	h.terms[src] = a
	return a, nil
}

// class returns the current class of a term added before the run.
func (h *Harness) class(src string) ir.AppliedID {
	return h.graph.Normalize(h.terms[src])
}

// print renders e with the scenario's slot names.
func (h *Harness) print(e lang.RecExpr) string {
	return h.parser.PrintTerm(e)
}
