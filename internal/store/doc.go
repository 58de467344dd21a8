// Package store provides SQLite-backed durable storage for rewrite run logs.
//
// The store is an append-only log of:
//   - Runs: one row per Runner.Run, with its rule set and outcome
//   - Iterations: per-iteration statistics of a run
//   - Firings: every applied (rule, match) pair, in firing order
//
// The e-graph itself is never stored. A run log answers "what fired, when,
// and what did it do to the graph's size", not "what is in the graph".
//
// # Critical Patterns
//
// Logical Time
//   - Firings are ordered by seq INTEGER (logical clock), NEVER timestamps
//
// Deterministic Query Results
//   - All list queries include an explicit ORDER BY
//
// Idempotent Writes
//   - Every insert uses ON CONFLICT DO NOTHING on the row's natural key, so
//     re-recording a run does not duplicate it
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
