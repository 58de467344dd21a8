package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
	Rules    []string
	Builtin  string
}

// FiringDiff is the first position where a replay leaves the run log.
type FiringDiff struct {
	Seq      int64           `json:"seq"`
	Recorded *rewrite.Firing `json:"recorded,omitempty"`
	Replayed *rewrite.Firing `json:"replayed,omitempty"`
}

// ReplayResult is the outcome of replaying one run.
type ReplayResult struct {
	RunID         string             `json:"run_id"`
	Term          string             `json:"term"`
	RecordedStop  rewrite.StopReason `json:"recorded_stop"`
	ReplayedStop  rewrite.StopReason `json:"replayed_stop"`
	Recorded      int                `json:"recorded_firings"`
	Replayed      int                `json:"replayed_firings"`
	Deterministic bool               `json:"deterministic"`
	Diff          *FiringDiff        `json:"diff,omitempty"`
}

// Text implements Texter.
func (r ReplayResult) Text(w io.Writer) {
	fmt.Fprintf(w, "Replay of run %s\n", r.RunID)
	fmt.Fprintf(w, "  term: %s\n", r.Term)
	fmt.Fprintf(w, "  recorded: %d firing(s), %s\n", r.Recorded, r.RecordedStop)
	fmt.Fprintf(w, "  replayed: %d firing(s), %s\n", r.Replayed, r.ReplayedStop)
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Deterministic")
		return
	}
	fmt.Fprintln(w, "✗ NOT deterministic")
	if r.Diff != nil {
		fmt.Fprintf(w, "  first difference at seq %d\n", r.Diff.Seq)
		fmt.Fprintf(w, "    recorded: %s\n", formatFiring(r.Diff.Recorded))
		fmt.Fprintf(w, "    replayed: %s\n", formatFiring(r.Diff.Replayed))
	}
}

func formatFiring(f *rewrite.Firing) string {
	if f == nil {
		return "(none)"
	}
	return fmt.Sprintf("it=%d %s at %s merged=%t match=%s", f.Iteration, f.Rule, f.Root, f.Merged, truncateID(f.MatchHash))
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run a recorded run and verify determinism",
		Long: `Re-run the term of a recorded run with the same rules and limits,
and compare the firings with the run log.

The rules must hash to the rule set recorded with the run.

Exit codes:
  0 - The replay matches the run log
  1 - The replay differs from the run log
  2 - Command error (database not found, rule set mismatch, etc.)

Examples:
  slotted replay --db ./runs.db --run 0192f0c4-... --builtin rise
  slotted replay --db ./runs.db --run 0192f0c4-... --rules ./rules --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to replay (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringArrayVar(&opts.Rules, "rules", nil, "directory of CUE rule files (repeatable)")
	cmd.Flags().StringVar(&opts.Builtin, "builtin", "", "builtin rule set (rise)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	recorded, err := st.ListFirings(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}

	rules, loadErrs := LoadRuleSet(opts.Builtin, opts.Rules)
	if len(loadErrs) > 0 {
		_ = formatter.Error(ErrCodeLoadFailed, "failed to load rules", loadErrorDetails(loadErrs))
		return WrapExitError(ExitCommandError, "failed to load rules", errors.Join(loadErrs...))
	}

	result, err := replayRun(ctx, run, recorded, rules)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			_ = formatter.Error(ErrCodeMismatch, exitErr.Message, nil)
			return err
		}
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if !result.Deterministic {
		_ = formatter.Failure(ErrCodeMismatch, "replay differs from the run log", result)
		return NewExitError(ExitFailure, "replay differs from the run log")
	}
	return formatter.Success(result)
}

// replayRun re-runs run into an in-memory run log and compares the
// firings with recorded.
func replayRun(ctx context.Context, run store.Run, recorded []rewrite.Firing, rules []*rewrite.Rule) (*ReplayResult, error) {
	mem, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	runner, err := rewrite.NewRunner(rules,
		rewrite.WithLogger(slog.Default()),
		rewrite.WithMaxIterations(run.MaxIterations),
		rewrite.WithMaxClasses(run.MaxClasses),
		rewrite.WithTerm(run.Term),
		rewrite.WithRecorder(mem),
		rewrite.WithRunIDGenerator(rewrite.NewFixedGenerator(run.ID)),
	)
	if err != nil {
		return nil, err
	}
	if got := runner.RuleSetHash(); got != run.RuleSetHash {
		return nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("rule set %s does not match the recorded rule set %s", truncateID(got), truncateID(run.RuleSetHash)), nil)
	}

	g := egraph.New(egraph.WithLogger(slog.Default()))
	expr, err := syntax.NewParser(g.SlotSource()).ParseExpr(run.Term)
	if err != nil {
		return nil, fmt.Errorf("recorded term: %w", err)
	}
	g.AddExpr(expr)

	report, runErr := runner.Run(ctx, g)
	if runErr != nil && !rewrite.IsQuotaError(runErr) {
		return nil, runErr
	}
	replayed, err := mem.ListFirings(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	// A run that never finished is compared up to where its log ends.
	partial := run.Open() || run.Stop == rewrite.StopCancelled
	result := &ReplayResult{
		RunID:        run.ID,
		Term:         run.Term,
		RecordedStop: run.Stop,
		ReplayedStop: report.Stop,
		Recorded:     len(recorded),
		Replayed:     len(replayed),
	}
	result.Diff = diffFirings(recorded, replayed, partial)
	result.Deterministic = result.Diff == nil && (partial || run.Stop == report.Stop)
	return result, nil
}

// diffFirings returns the first firing where a and b differ, ignoring run
// ids. With prefix set, b may extend past the end of a.
func diffFirings(a, b []rewrite.Firing, prefix bool) *FiringDiff {
	for i := range a {
		if i >= len(b) {
			return &FiringDiff{Seq: a[i].Seq, Recorded: &a[i]}
		}
		x, y := a[i], b[i]
		x.RunID, y.RunID = "", ""
		if x != y {
			return &FiringDiff{Seq: a[i].Seq, Recorded: &a[i], Replayed: &b[i]}
		}
	}
	if !prefix && len(b) > len(a) {
		return &FiringDiff{Seq: b[len(a)].Seq, Replayed: &b[len(a)]}
	}
	return nil
}
