package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// BeginRun inserts an open run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) BeginRun(ctx context.Context, info rewrite.RunInfo) error {
	rules := info.Rules
	if rules == nil {
		rules = []string{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, term, engine_version, rule_set_hash, rules, max_iterations, max_classes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		info.ID,
		info.Term,
		info.EngineVersion,
		info.RuleSetHash,
		string(rulesJSON),
		info.MaxIterations,
		info.MaxClasses,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordFiring inserts a firing record.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordFiring(ctx context.Context, f rewrite.Firing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO firings
		(run_id, seq, iteration, rule, match_hash, root, merged)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		f.RunID,
		f.Seq,
		f.Iteration,
		f.Rule,
		f.MatchHash,
		f.Root,
		boolToInt(f.Merged),
	)
	if err != nil {
		return fmt.Errorf("record firing: %w", err)
	}
	return nil
}

// RecordIteration inserts the statistics of one iteration.
// Uses ON CONFLICT(run_id, idx) DO NOTHING for idempotency.
func (s *Store) RecordIteration(ctx context.Context, runID string, it rewrite.Iteration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO iterations
		(run_id, idx, matches, skipped, rejected, applied, unions,
		 self_unions_rejected, repairs, allocated, classes, nodes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		runID,
		it.Index,
		it.Matches,
		it.Skipped,
		it.Rejected,
		it.Applied,
		it.Unions,
		it.SelfUnionsRejected,
		it.Repairs,
		it.Allocated,
		it.Classes,
		it.Nodes,
	)
	if err != nil {
		return fmt.Errorf("record iteration: %w", err)
	}
	return nil
}

// EndRun closes a run with its outcome. Closing an already closed run is a
// no-op.
func (s *Store) EndRun(ctx context.Context, r *rewrite.Report) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET stop_reason = ?, firings = ?, classes = ?, nodes = ?
		WHERE id = ? AND stop_reason IS NULL
	`,
		string(r.Stop),
		r.Firings,
		r.Classes,
		r.Nodes,
		r.RunID,
	)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetRun(ctx, r.RunID); err != nil {
			return fmt.Errorf("end run: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
