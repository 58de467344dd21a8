// Package testutil provides fixtures shared by the tests of packages that
// sit above the e-graph: parsed terms in a fresh graph, a quiet logger and
// a run id generator that repeats one id.
package testutil
