package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Builtin string
	Output  string // output file path
}

// CompiledRule is the printed form of a compiled rule.
type CompiledRule struct {
	Name       string   `json:"name"`
	LHS        string   `json:"lhs"`
	RHS        string   `json:"rhs"`
	Conditions []string `json:"conditions,omitempty"`
	AnyOf      []string `json:"any_of,omitempty"`
	Hash       string   `json:"hash"`
}

// CompilationResult holds the compiled rule set.
type CompilationResult struct {
	RuleSetHash string         `json:"rule_set_hash"`
	Rules       []CompiledRule `json:"rules"`
}

// Text implements Texter.
func (r *CompilationResult) Text(w io.Writer) {
	fmt.Fprintf(w, "✓ Compiled %d rule(s) (rule set %s)\n", len(r.Rules), truncateID(r.RuleSetHash))
	for _, rule := range r.Rules {
		fmt.Fprintf(w, "  %s: %s => %s\n", rule.Name, rule.LHS, rule.RHS)
		for _, c := range rule.Conditions {
			fmt.Fprintf(w, "    if %s\n", c)
		}
		if len(rule.AnyOf) > 0 {
			fmt.Fprintf(w, "    if any of %v\n", rule.AnyOf)
		}
	}
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [rules-dir...]",
		Short: "Compile CUE rule files and print the rules",
		Long: `Compile CUE rule files and print every rule with its content hash.

Slots print as numbers: names are local to the rule file. The rule set
hash is the one recorded with every run that uses these rules.`,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Builtin, "builtin", "", "include a builtin rule set (rise)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dirs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	rules, loadErrs := LoadRuleSet(opts.Builtin, dirs)
	if len(loadErrs) > 0 {
		_ = formatter.Error(ErrCodeLoadFailed, fmt.Sprintf("%d error(s) loading rules", len(loadErrs)), loadErrorDetails(loadErrs))
		return WrapExitError(ExitFailure, "compilation failed", loadErrs[0])
	}
	for _, r := range rules {
		formatter.VerboseLog("Compiled rule: %s", r.Name)
	}

	result, err := compileResult(rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid rules", err)
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeRulesToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	return formatter.Success(result)
}

func compileResult(rules []*rewrite.Rule) (*CompilationResult, error) {
	runner, err := rewrite.NewRunner(rules)
	if err != nil {
		return nil, err
	}
	result := &CompilationResult{
		RuleSetHash: runner.RuleSetHash(),
		Rules:       make([]CompiledRule, 0, len(rules)),
	}
	for _, r := range rules {
		c := CompiledRule{
			Name: r.Name,
			LHS:  r.LHS.String(),
			RHS:  r.RHS.String(),
			Hash: r.Hash(),
		}
		for _, cond := range r.Conditions {
			c.Conditions = append(c.Conditions, cond.String())
		}
		for _, cond := range r.AnyOf {
			c.AnyOf = append(c.AnyOf, cond.String())
		}
		result.Rules = append(result.Rules, c)
	}
	return result, nil
}

// writeRulesToFile writes the compiled rules as indented JSON.
func writeRulesToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}
