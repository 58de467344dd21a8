package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Run is a stored run record.
type Run struct {
	ID            string
	Term          string
	EngineVersion string
	RuleSetHash   string
	Rules         []string
	MaxIterations int
	MaxClasses    int
	Stop          rewrite.StopReason // empty while the run is open
	Firings       int
	Classes       int
	Nodes         int
}

// Open reports whether the run has not been closed by EndRun.
func (r Run) Open() bool {
	return r.Stop == ""
}

// GetRun returns the run with the given id, or an error wrapping
// ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, term, engine_version, rule_set_hash, rules, max_iterations, max_classes,
		       stop_reason, firings, classes, nodes
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns every run ordered by id. UUIDv7 ids sort by creation
// time.
//
// Returns an empty slice (not nil) if the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, term, engine_version, rule_set_hash, rules, max_iterations, max_classes,
		       stop_reason, firings, classes, nodes
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		rulesJSON string
		stop      sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Term,
		&run.EngineVersion,
		&run.RuleSetHash,
		&rulesJSON,
		&run.MaxIterations,
		&run.MaxClasses,
		&stop,
		&run.Firings,
		&run.Classes,
		&run.Nodes,
	)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &run.Rules); err != nil {
		return Run{}, fmt.Errorf("scan run %s: rules: %w", run.ID, err)
	}
	run.Stop = rewrite.StopReason(stop.String)
	return run, nil
}

// ListIterations returns the iterations of a run in order.
//
// Returns an empty slice (not nil) if the run has none.
func (s *Store) ListIterations(ctx context.Context, runID string) ([]rewrite.Iteration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, matches, skipped, rejected, applied, unions,
		       self_unions_rejected, repairs, allocated, classes, nodes
		FROM iterations
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()

	its := []rewrite.Iteration{}
	for rows.Next() {
		var it rewrite.Iteration
		err := rows.Scan(
			&it.Index,
			&it.Matches,
			&it.Skipped,
			&it.Rejected,
			&it.Applied,
			&it.Unions,
			&it.SelfUnionsRejected,
			&it.Repairs,
			&it.Allocated,
			&it.Classes,
			&it.Nodes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		its = append(its, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate iterations: %w", err)
	}
	return its, nil
}

// ListFirings returns the firings of a run in firing order.
//
// Returns an empty slice (not nil) if the run has none.
func (s *Store) ListFirings(ctx context.Context, runID string) ([]rewrite.Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, iteration, rule, match_hash, root, merged
		FROM firings
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []rewrite.Firing{}
	for rows.Next() {
		var (
			f      rewrite.Firing
			merged int
		)
		if err := rows.Scan(&f.RunID, &f.Seq, &f.Iteration, &f.Rule, &f.MatchHash, &f.Root, &merged); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.Merged = merged != 0
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// RuleCount is the number of firings of one rule in a run.
type RuleCount struct {
	Rule    string
	Firings int
	Merges  int
}

// CountFirings returns per-rule firing counts of a run, ordered by rule
// name.
func (s *Store) CountFirings(ctx context.Context, runID string) ([]RuleCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, COUNT(*), SUM(merged)
		FROM firings
		WHERE run_id = ?
		GROUP BY rule
		ORDER BY rule COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count firings: %w", err)
	}
	defer rows.Close()

	counts := []RuleCount{}
	for rows.Next() {
		var c RuleCount
		if err := rows.Scan(&c.Rule, &c.Firings, &c.Merges); err != nil {
			return nil, fmt.Errorf("scan rule count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule counts: %w", err)
	}
	return counts, nil
}
