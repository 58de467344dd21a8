// Package lang defines the node language of the e-graph.
//
// ENode is a closed sum type over the variants Var, Lam, App, Let, Num,
// Symbol and Add. Which fields of a variant are slots, which of those are
// public, and which are child references is stated once, in dispatch.go.
// Everything else (renaming, shapes, slot sets, child rewriting) is derived
// from those three functions, so adding a variant means touching enode.go,
// dispatch.go and the printer only.
//
// A slot occurrence is public when it is visible from outside the node. The
// binder of Lam and Let is private, as are the body occurrences it binds.
package lang
