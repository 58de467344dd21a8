package harness

import (
	"fmt"
	"strings"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Index    int    // Position in the scenario's assertion list
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: assertions[%d] %s\n", e.Index, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the graph of h and
// returns one message per failure, in assertion order.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEquivalent:
			err = assertEquivalent(h, a, true)
		case AssertNotEquivalent:
			err = assertEquivalent(h, a, false)
		case AssertExtractsTo:
			err = assertExtractsTo(h, a)
		case AssertClassCount:
			err = assertClassCount(h, a)
		case AssertInvariants:
			err = assertInvariants(h)
		default:
			err = &AssertionError{Type: a.Type, Expected: "a known assertion type", Actual: a.Type}
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Index = i
			}
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertEquivalent(h *Harness, a Assertion, want bool) error {
	l, r := h.class(a.Left), h.class(a.Right)
	if h.graph.Equivalent(l, r) == want {
		return nil
	}

	typ, expected, actual := AssertEquivalent, "same class", "different classes"
	if !want {
		typ, expected, actual = AssertNotEquivalent, "different classes", "same class"
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%s and %s in %s", a.Left, a.Right, expected),
		Actual:   fmt.Sprintf("%s (%v, %v)", actual, l, r),
	}
}

// assertExtractsTo compares up to renaming of binders: both terms are added
// to a scratch graph, where alpha-equivalent terms share a class.
func assertExtractsTo(h *Harness, a Assertion) error {
	root := h.root
	if a.Term != "" {
		root = h.class(a.Term)
	}
	got := h.graph.Extract(root)

	want, err := h.parser.ParseExpr(a.Expect)
	if err != nil {
		return &AssertionError{
			Type:     AssertExtractsTo,
			Expected: a.Expect,
			Actual:   fmt.Sprintf("expect does not parse: %v", err),
		}
	}

	scratch := egraph.New(egraph.WithLogger(h.logger), egraph.WithSlotSource(h.graph.SlotSource()))
	if scratch.AddExpr(got).Equal(scratch.AddExpr(want)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertExtractsTo,
		Expected: a.Expect,
		Actual:   h.print(got),
	}
}

func assertClassCount(h *Harness, a Assertion) error {
	if n := h.graph.NumClasses(); n != a.Count {
		return &AssertionError{
			Type:     AssertClassCount,
			Expected: fmt.Sprintf("%d classes", a.Count),
			Actual:   fmt.Sprintf("%d classes", n),
		}
	}
	return nil
}

func assertInvariants(h *Harness) error {
	if err := h.graph.CheckInvariants(); err != nil {
		return &AssertionError{
			Type:     AssertInvariants,
			Expected: "all invariants hold",
			Actual:   err.Error(),
		}
	}
	return nil
}
