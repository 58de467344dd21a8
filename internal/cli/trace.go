package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - without it, runs are listed
	Rule     string // optional - filter firings to one rule
	Firings  bool   // list individual firings in text output
}

// RunList is the trace output without --run.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// Text implements Texter.
func (l RunList) Text(w io.Writer) {
	if len(l.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range l.Runs {
		fmt.Fprintf(w, "%s  %-15s  firings=%d classes=%d  %s\n", r.ID, runStatus(r), r.Firings, r.Classes, r.Term)
	}
}

// TraceResult holds the complete trace of one run.
type TraceResult struct {
	Run        store.Run           `json:"run"`
	Iterations []rewrite.Iteration `json:"iterations"`
	Rules      []store.RuleCount   `json:"rules"`
	Firings    []rewrite.Firing    `json:"firings"`

	verbose     bool
	showFirings bool
}

// Text implements Texter.
func (t *TraceResult) Text(w io.Writer) {
	fmt.Fprintf(w, "Trace for Run: %s\n", t.Run.ID)
	fmt.Fprintf(w, "Term: %s\n", t.Run.Term)
	fmt.Fprintf(w, "Status: %s\n", runStatus(t.Run))
	if t.verbose {
		fmt.Fprintf(w, "Engine: %s  Rule set: %s\n", t.Run.EngineVersion, truncateID(t.Run.RuleSetHash))
		fmt.Fprintf(w, "Limits: %d iterations, %d classes\n", t.Run.MaxIterations, t.Run.MaxClasses)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Iterations ===")
	if len(t.Iterations) == 0 {
		fmt.Fprintln(w, "  (no iterations)")
	}
	for _, it := range t.Iterations {
		fmt.Fprintf(w, "  [%d] matches=%d skipped=%d rejected=%d applied=%d unions=%d repairs=%d classes=%d nodes=%d\n",
			it.Index, it.Matches, it.Skipped, it.Rejected, it.Applied, it.Unions, it.Repairs, it.Classes, it.Nodes)
		if it.SelfUnionsRejected > 0 {
			fmt.Fprintf(w, "       self unions rejected: %d\n", it.SelfUnionsRejected)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Rules ===")
	if len(t.Rules) == 0 {
		fmt.Fprintln(w, "  (no firings)")
	}
	for _, c := range t.Rules {
		fmt.Fprintf(w, "  %-28s fired=%d merged=%d\n", c.Rule, c.Firings, c.Merges)
	}

	if t.showFirings {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Firings ===")
		for _, f := range t.Firings {
			merged := ""
			if f.Merged {
				merged = " (merged)"
			}
			fmt.Fprintf(w, "  [%d] it=%d %s at %s%s\n", f.Seq, f.Iteration, f.Rule, f.Root, merged)
			if t.verbose {
				fmt.Fprintf(w, "       match: %s\n", truncateID(f.MatchHash))
			}
		}
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs",
		Long: `Read the run log written by "slotted run --db".

Without --run, lists every recorded run. With --run, shows the
iterations of the run and how often each rule fired.

Examples:
  slotted trace --db ./runs.db
  slotted trace --db ./runs.db --run 0192f0c4-...
  slotted trace --db ./runs.db --run 0192f0c4-... --firings --rule beta
  slotted trace --db ./runs.db --run 0192f0c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "filter firings to a specific rule")
	cmd.Flags().BoolVar(&opts.Firings, "firings", false, "list individual firings")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return formatter.Success(RunList{Runs: runs})
	}

	result, err := loadTrace(ctx, st, opts.RunID, opts.Rule)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	result.verbose = opts.Verbose
	result.showFirings = opts.Firings || opts.Rule != ""
	return formatter.Success(result)
}

func loadTrace(ctx context.Context, st *store.Store, runID, rule string) (*TraceResult, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	iterations, err := st.ListIterations(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts, err := st.CountFirings(ctx, runID)
	if err != nil {
		return nil, err
	}
	firings, err := st.ListFirings(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rule != "" {
		kept := firings[:0]
		for _, f := range firings {
			if f.Rule == rule {
				kept = append(kept, f)
			}
		}
		firings = kept
	}
	return &TraceResult{
		Run:        run,
		Iterations: iterations,
		Rules:      counts,
		Firings:    firings,
	}, nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// runStatus returns a human-readable run status.
func runStatus(r store.Run) string {
	if r.Open() {
		return "open"
	}
	return string(r.Stop)
}
