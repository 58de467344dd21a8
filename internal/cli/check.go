package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marcusrossel/slotted-egraphs/internal/compiler"
)

// CheckResult holds rule check results.
type CheckResult struct {
	Valid    bool                    `json:"valid"`
	Rules    int                     `json:"rules"`
	Errors   []string                `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// Text implements Texter.
func (r CheckResult) Text(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %d rule(s) valid\n", r.Rules)
	} else {
		fmt.Fprintf(w, "✗ %d error(s)\n", len(r.Errors))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s: %s\n", warn.Level, warn.Message)
	}
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var builtin string

	cmd := &cobra.Command{
		Use:   "check [rules-dir...]",
		Short: "Validate rules without running them",
		Long: `Compile CUE rule files and check the rule set.

Reports every broken rule (not just the first), duplicate names,
identity rules and rules that can feed each other. Feedback cycles are
warnings: equality saturation relies on them, and the run limits bound
every run.

Exit codes:
  0 - Rules are valid (warnings allowed)
  1 - One or more rules are invalid
  2 - Command error (invalid paths, etc.)`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, builtin, args, cmd)
		},
	}

	cmd.Flags().StringVar(&builtin, "builtin", "", "include a builtin rule set (rise)")

	return cmd
}

func runCheck(opts *RootOptions, builtin string, dirs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	rules, loadErrs := LoadRuleSet(builtin, dirs)
	for _, err := range loadErrs {
		if le, ok := err.(*LoadError); ok && le.Code == ErrCodeNotFound {
			_ = formatter.Error(le.Code, le.Message, nil)
			return WrapExitError(ExitCommandError, "rules directory not found", le)
		}
	}
	formatter.VerboseLog("Loaded %d rule(s)", len(rules))

	result := CheckResult{
		Valid:    len(loadErrs) == 0,
		Rules:    len(rules),
		Errors:   loadErrorDetails(loadErrs),
		Warnings: compiler.AnalyzeCycles(rules),
	}

	if !result.Valid {
		_ = formatter.Failure(ErrCodeInvalidRule, fmt.Sprintf("%d invalid rule(s)", len(loadErrs)), result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid rule(s)", len(loadErrs)))
	}
	return formatter.Success(result)
}
