package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// CycleWarning represents a potential feedback loop between rules.
//
// Cycles are warnings, not errors: equality saturation is built on rules
// that feed each other, and the runner's limits bound every run. They
// point at the rules to look at when a run hits its class quota.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static feedback analysis on rules.
//
// Rule A may trigger rule B when the right side of A builds a node with the
// operator at the root of B's left side. A right side containing subst may
// build anything and triggers every rule. A bare variable builds nothing.
//
// The algorithm:
//  1. Build the rule → rule trigger graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(rules []*rewrite.Rule) []CycleWarning {
	if len(rules) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(rules)
	order := make([]string, len(rules))
	for i, r := range rules {
		order[i] = r.Name
	}

	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			slices.SortStableFunc(scc, func(a, b string) int {
				return slices.Index(order, a) - slices.Index(order, b)
			})
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	return warnings
}

// dependencyGraph maps rule name → rules it could trigger.
type dependencyGraph map[string][]string

// operator identifies the operator of a node pattern. Symbols are told
// apart by name.
func operator(n lang.ENode) string {
	if s, ok := n.(*lang.Symbol); ok {
		return "sym:" + s.Name
	}
	return n.Kind().String()
}

// builds returns the operators the pattern builds, and whether it may build
// anything at all.
func builds(p pattern.Pattern) (ops map[string]bool, open bool) {
	ops = make(map[string]bool)
	var walk func(pattern.Pattern)
	walk = func(p pattern.Pattern) {
		switch p := p.(type) {
		case *pattern.Node:
			ops[operator(p.Node)] = true
			for _, c := range p.Children {
				walk(c)
			}
		case *pattern.Subst:
			open = true
			walk(p.Body)
			walk(p.Target)
			walk(p.Replacement)
		}
	}
	walk(p)
	return ops, open
}

// buildDependencyGraph constructs the rule trigger graph.
func buildDependencyGraph(rules []*rewrite.Rule) dependencyGraph {
	graph := make(dependencyGraph)
	for _, a := range rules {
		ops, open := builds(a.RHS)
		graph[a.Name] = []string{}
		for _, b := range rules {
			root, ok := b.LHS.(*pattern.Node)
			if !ok {
				continue
			}
			if open || ops[operator(root.Node)] {
				graph[a.Name] = append(graph[a.Name], b.Name)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of rule names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes in declaration order
	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [rule, rule].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-triggering rule detected: %s → %s", name, name),
			Level:   "info",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
