package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/metrics"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Rules         []string
	Builtin       string
	Iterations    int
	MaxClasses    int
	Database      string
	Metrics       bool
	MetricsListen string

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to rewrite.UUIDv7Generator.
	RunIDGenerator rewrite.RunIDGenerator
}

// RunOutput is the result of the run command.
type RunOutput struct {
	RunID      string              `json:"run_id"`
	Term       string              `json:"term"`
	Stop       rewrite.StopReason  `json:"stop"`
	Iterations []rewrite.Iteration `json:"iterations"`
	Firings    int                 `json:"firings"`
	Classes    int                 `json:"classes"`
	Nodes      int                 `json:"nodes"`
	Extracted  string              `json:"extracted"`
	Cost       int                 `json:"cost"`
}

// Text implements Texter.
func (o RunOutput) Text(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %s after %d iteration(s)\n", o.RunID, o.Stop, len(o.Iterations))
	fmt.Fprintf(w, "  firings: %d, classes: %d, nodes: %d\n", o.Firings, o.Classes, o.Nodes)
	fmt.Fprintf(w, "  %s\n", o.Term)
	fmt.Fprintf(w, "  => %s (size %d)\n", o.Extracted, o.Cost)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <term>",
		Short: "Rewrite a term to saturation",
		Long: `Add a term to a fresh e-graph, run the rules until nothing changes
or a limit is hit, and print the smallest equivalent term.

Rules come from CUE rule directories (--rules, repeatable) and/or a
builtin rule set (--builtin rise). With --db every iteration and rule
firing is recorded in a SQLite run log that "slotted trace" reads.

Example:
  slotted run --builtin rise '(app (lam $x (add $x 1)) 2)'
  slotted run --rules ./rules --db ./runs.db --iters 10 '(add 1 (add 2 3))'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Rules, "rules", nil, "directory of CUE rule files (repeatable)")
	cmd.Flags().StringVar(&opts.Builtin, "builtin", "", "builtin rule set (rise)")
	cmd.Flags().IntVar(&opts.Iterations, "iters", rewrite.DefaultMaxIterations, "iteration limit")
	cmd.Flags().IntVar(&opts.MaxClasses, "max-classes", rewrite.DefaultMaxClasses, "class quota")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print prometheus metrics to stderr after the run")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "serve /metrics on this address during the run")

	return cmd
}

func runRewrite(opts *RunOptions, term string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	rules, loadErrs := LoadRuleSet(opts.Builtin, opts.Rules)
	if len(loadErrs) > 0 {
		_ = formatter.Error(ErrCodeLoadFailed, "failed to load rules", loadErrorDetails(loadErrs))
		return WrapExitError(ExitCommandError, "failed to load rules", errors.Join(loadErrs...))
	}
	formatter.VerboseLog("Loaded %d rule(s)", len(rules))

	g := egraph.New(egraph.WithLogger(slog.Default()))
	parser := syntax.NewParser(g.SlotSource())
	expr, err := parser.ParseExpr(term)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to parse term", err)
	}
	root := g.AddExpr(expr)

	runOpts := []rewrite.Option{
		rewrite.WithLogger(slog.Default()),
		rewrite.WithMaxIterations(opts.Iterations),
		rewrite.WithMaxClasses(opts.MaxClasses),
		rewrite.WithTerm(term),
	}
	if opts.RunIDGenerator != nil {
		runOpts = append(runOpts, rewrite.WithRunIDGenerator(opts.RunIDGenerator))
	}

	// Open database (create if not exists)
	if opts.Database != "" {
		slog.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, rewrite.WithRecorder(st))
	}

	var m *metrics.Metrics
	if opts.Metrics || opts.MetricsListen != "" {
		m = metrics.New()
		names := make([]string, len(rules))
		for i, r := range rules {
			names[i] = r.Name
		}
		m.InitRules(names)
		runOpts = append(runOpts, rewrite.WithMetrics(m))
	}

	runner, err := rewrite.NewRunner(rules, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid rules", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.MetricsListen != "" {
		serveCtx, stopServe := context.WithCancel(ctx)
		defer stopServe()
		go func() {
			if err := m.Serve(serveCtx, opts.MetricsListen); err != nil {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	report, runErr := runner.Run(ctx, g)
	if runErr != nil && !rewrite.IsQuotaError(runErr) {
		if rewrite.IsCancelled(runErr) {
			return WrapExitError(ExitFailure, "run cancelled", runErr)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	extractor := egraph.NewExtractor(g)
	cost, _ := extractor.Cost(root.ID)
	out := RunOutput{
		RunID:      report.RunID,
		Term:       term,
		Stop:       report.Stop,
		Iterations: report.Iterations,
		Firings:    report.Firings,
		Classes:    report.Classes,
		Nodes:      report.Nodes,
		Extracted:  parser.PrintTerm(extractor.Extract(root)),
		Cost:       cost,
	}

	if opts.Metrics {
		if err := m.WriteText(cmd.ErrOrStderr()); err != nil {
			slog.Error("writing metrics failed", "error", err)
		}
	}

	// Hitting the class quota still leaves a usable graph.
	return formatter.Success(out)
}
