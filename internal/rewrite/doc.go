// Package rewrite drives equality saturation over an e-graph.
//
// A Runner holds an ordered list of rules and applies them to a graph in
// rounds until nothing changes, a limit is hit, or the context is done.
//
// ARCHITECTURE:
//
// Search/Apply/Rebuild Iterations:
// Each iteration has three phases:
// 1. Search: every rule is matched against the graph as it was at the start
// of the iteration. Matches are collected, never applied while searching.
// 2. Apply: each new match is renamed into the rule's slot names, checked
// against the rule's conditions, instantiated and unioned with its root.
// 3. Rebuild: the graph's repair passes run until they reach a fixpoint.
//
// The runner is designed for determinism, not throughput. There is no
// concurrency: rules are searched in declaration order and classes in id
// order, so two runs over the same input produce the same firings.
//
// CRITICAL PATTERNS:
//
// Match De-duplication:
// Every applied (rule, match) pair is recorded by its canonical hash in a
// MatchDetector. A match seen again in a later iteration is skipped, which
// keeps saturation detection honest.
//
// Logical Clock:
// Firings are stamped with a monotonic sequence number from Clock.Next().
// Wall-clock time is never used for ordering.
//
// Termination:
// Two limits guarantee termination: the iteration limit stops a run that
// keeps finding work, and the class quota stops a run whose graph keeps
// growing within one iteration budget.
package rewrite
