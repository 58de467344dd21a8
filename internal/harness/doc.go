// Package harness runs rewrite scenarios as executable tests.
//
// A scenario names a rule set, a term and the facts that must hold once the
// rules have run to saturation or to the iteration limit.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: beta-through-let
//	description: "beta reduction goes through let"
//	builtin: rise               # rewrite.RiseRules
//	rules:                      # CUE rule directories, relative to the file
//	  - ../rules/arith
//	inline_rules:               # compiler.RuleSpec entries
//	  - name: add-zero
//	    lhs: "(add ?a 0)"
//	    rhs: "?a"
//	term: "(app (lam $x (add $x 1)) 2)"
//	iterations: 10
//	assertions:
//	  - type: equivalent
//	    left: "(app (lam $x (add $x 1)) 2)"
//	    right: "(add 2 1)"
//	  - type: extracts_to
//	    expect: "(add 2 1)"
//	  - type: class_count
//	    count: 5
//	  - type: invariants
//
// Slot names are shared across every term of a scenario: $x in the term and
// $x in an assertion are the same slot.
//
// # Assertion Types
//
//   - equivalent: left and right are in the same class
//   - not_equivalent: left and right are in different classes
//   - extracts_to: the smallest term of term (default: the scenario term)
//     is alpha-equivalent to expect
//   - class_count: the graph has exactly count classes
//   - invariants: the e-graph invariants hold
//
// Every term an assertion names is added to the graph before the run, so
// equivalence is decided by the rules and not by when a term was added.
//
// # Deterministic Testing
//
// Runs use a fixed run id and record into an in-memory SQLite run log, so
// the golden snapshot of a scenario is the same on every run.
package harness
