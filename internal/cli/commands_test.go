package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
)

const (
	scenariosDir = "../../testdata/scenarios"
	arithRules   = "../../testdata/rules/arith"
	transposeSrc = "(transpose (transpose xs))"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// recordRun runs the transpose term with the builtin rules into a new run
// log and returns the database path and the run id.
func recordRun(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	out, _, err := execute(t, "--format", "json", "run", "--builtin", "rise", "--db", dbPath, transposeSrc)
	require.NoError(t, err)
	resp := decode[RunOutput](t, out)
	require.NotEmpty(t, resp.Data.RunID)
	return dbPath, resp.Data.RunID
}

func TestRun(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "run", "--builtin", "rise", transposeSrc)
		require.NoError(t, err)
		assert.Contains(t, out, "saturated")
		assert.Contains(t, out, "=> xs (size 1)")
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "run", "--builtin", "rise", transposeSrc)
		require.NoError(t, err)

		resp := decode[RunOutput](t, out)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, rewrite.StopSaturated, resp.Data.Stop)
		assert.Equal(t, transposeSrc, resp.Data.Term)
		assert.Equal(t, "xs", resp.Data.Extracted)
		assert.Equal(t, 1, resp.Data.Cost)
		assert.Positive(t, resp.Data.Firings)
	})

	t.Run("rules directory", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "run", "--rules", arithRules, "--iters", "3", "(add 1 2)")
		require.NoError(t, err)
		resp := decode[RunOutput](t, out)
		assert.Equal(t, 3, resp.Data.Cost)
	})

	t.Run("fixed run id", func(t *testing.T) {
		var out bytes.Buffer
		cmd := NewRunCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetContext(context.Background())

		// The generator is only reachable through the options struct.
		opts := &RunOptions{
			RootOptions:    &RootOptions{Format: "text"},
			Builtin:        "rise",
			Iterations:     rewrite.DefaultMaxIterations,
			MaxClasses:     rewrite.DefaultMaxClasses,
			RunIDGenerator: rewrite.NewFixedGenerator("run-fixed"),
		}
		require.NoError(t, runRewrite(opts, transposeSrc, cmd))
		assert.Contains(t, out.String(), "Run run-fixed: saturated")
	})

	t.Run("parse error", func(t *testing.T) {
		out, _, err := execute(t, "run", "--builtin", "rise", "(add 1")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "E008")
	})

	t.Run("no rules", func(t *testing.T) {
		out, _, err := execute(t, "run", "(add 1 2)")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "failed to load rules")
	})

	t.Run("metrics", func(t *testing.T) {
		_, errOut, err := execute(t, "run", "--builtin", "rise", "--metrics", transposeSrc)
		require.NoError(t, err)
		assert.Contains(t, errOut, `slotted_rule_applications_total{rule="remove-transpose-pair"}`)
		assert.Contains(t, errOut, "slotted_iterations_total")
	})
}

func TestRunRecordsToDatabase(t *testing.T) {
	dbPath, runID := recordRun(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, transposeSrc, run.Term)
	assert.Equal(t, rewrite.StopSaturated, run.Stop)
	assert.Equal(t, len(rewrite.RiseRules()), len(run.Rules))
	assert.Positive(t, run.Firings)
}

func TestCheck(t *testing.T) {
	t.Run("valid rules", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "check", arithRules)
		require.NoError(t, err)
		resp := decode[CheckResult](t, out)
		assert.True(t, resp.Data.Valid)
		assert.Positive(t, resp.Data.Rules)
		assert.Empty(t, resp.Data.Errors)
	})

	t.Run("builtin", func(t *testing.T) {
		out, _, err := execute(t, "check", "--builtin", "rise")
		require.NoError(t, err)
		assert.Contains(t, out, "rule(s) valid")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "check", filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("invalid rule", func(t *testing.T) {
		dir := t.TempDir()
		src := "package rules\n\nrule: \"broken\": {\n\tlhs: \"(add ?a\"\n\trhs: \"?a\"\n}\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.cue"), []byte(src), 0o644))

		out, _, err := execute(t, "check", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "broken")
	})
}

func TestCompile(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "compile", "--builtin", "rise")
		require.NoError(t, err)
		resp := decode[CompilationResult](t, out)
		require.Len(t, resp.Data.Rules, len(rewrite.RiseRules()))

		runner, err := rewrite.NewRunner(rewrite.RiseRules())
		require.NoError(t, err)
		assert.Equal(t, runner.RuleSetHash(), resp.Data.RuleSetHash)
		assert.Equal(t, "beta", resp.Data.Rules[0].Name)
	})

	t.Run("output file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.json")
		_, _, err := execute(t, "compile", arithRules, "-o", path)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var result CompilationResult
		require.NoError(t, json.Unmarshal(data, &result))
		assert.NotEmpty(t, result.Rules)
		assert.Len(t, result.RuleSetHash, 64)
	})
}

func TestTestCommand(t *testing.T) {
	t.Run("all scenarios pass", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "test", scenariosDir)
		require.NoError(t, err, out)
		resp := decode[TestResult](t, out)
		assert.Equal(t, 0, resp.Data.Failed)
		assert.Equal(t, resp.Data.Total, resp.Data.Passed)
		assert.Positive(t, resp.Data.Total)
	})

	t.Run("filter", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "test", scenariosDir, "--filter", "transpose-*")
		require.NoError(t, err)
		resp := decode[TestResult](t, out)
		require.Len(t, resp.Data.Scenarios, 1)
		assert.Equal(t, "transpose-pair", resp.Data.Scenarios[0].Name)
	})

	t.Run("update then match golden", func(t *testing.T) {
		dir := t.TempDir()
		data, err := os.ReadFile(filepath.Join(scenariosDir, "transpose-pair.yaml"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "transpose-pair.yaml"), data, 0o644))

		out, _, err := execute(t, "--format", "json", "test", dir, "--update")
		require.NoError(t, err)
		assert.Equal(t, "updated", decode[TestResult](t, out).Data.Scenarios[0].Golden)
		assert.FileExists(t, filepath.Join(dir, "golden", "transpose-pair.golden"))

		out, _, err = execute(t, "--format", "json", "test", dir)
		require.NoError(t, err)
		assert.Equal(t, "match", decode[TestResult](t, out).Data.Scenarios[0].Golden)
	})

	t.Run("stale golden fails", func(t *testing.T) {
		dir := t.TempDir()
		data, err := os.ReadFile(filepath.Join(scenariosDir, "transpose-pair.yaml"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "transpose-pair.yaml"), data, 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "transpose-pair.golden"), []byte("{}\n"), 0o644))

		out, _, err := execute(t, "test", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "snapshot does not match golden file")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestTrace(t *testing.T) {
	t.Run("missing db flag", func(t *testing.T) {
		_, _, err := execute(t, "trace")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required flag")
	})

	t.Run("empty run log", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "empty.db"))
		require.NoError(t, err)
		assert.Contains(t, out, "No runs recorded.")
	})

	dbPath, runID := recordRun(t)

	t.Run("list runs", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "trace", "--db", dbPath)
		require.NoError(t, err)
		resp := decode[RunList](t, out)
		require.Len(t, resp.Data.Runs, 1)
		assert.Equal(t, runID, resp.Data.Runs[0].ID)
	})

	t.Run("one run", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", dbPath, "--run", runID, "--firings")
		require.NoError(t, err)
		assert.Contains(t, out, "Trace for Run: "+runID)
		assert.Contains(t, out, "Status: saturated")
		assert.Contains(t, out, "=== Iterations ===")
		assert.Contains(t, out, "=== Rules ===")
		assert.Contains(t, out, "=== Firings ===")
		assert.Contains(t, out, "remove-transpose-pair")
	})

	t.Run("rule filter", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "trace", "--db", dbPath, "--run", runID, "--rule", "remove-transpose-pair")
		require.NoError(t, err)
		resp := decode[TraceResult](t, out)
		require.NotEmpty(t, resp.Data.Firings)
		for _, f := range resp.Data.Firings {
			assert.Equal(t, "remove-transpose-pair", f.Rule)
		}
		assert.NotEmpty(t, resp.Data.Iterations)
	})

	t.Run("unknown run", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", dbPath, "--run", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "run not found: nope")
	})
}

func TestReplay(t *testing.T) {
	dbPath, runID := recordRun(t)

	t.Run("deterministic", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "replay", "--db", dbPath, "--run", runID, "--builtin", "rise")
		require.NoError(t, err, out)
		resp := decode[ReplayResult](t, out)
		assert.True(t, resp.Data.Deterministic)
		assert.Equal(t, resp.Data.Recorded, resp.Data.Replayed)
		assert.Nil(t, resp.Data.Diff)
	})

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "replay", "--db", dbPath, "--run", runID, "--builtin", "rise")
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Deterministic")
	})

	t.Run("rule set mismatch", func(t *testing.T) {
		out, _, err := execute(t, "replay", "--db", dbPath, "--run", runID, "--rules", arithRules)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "does not match the recorded rule set")
	})

	t.Run("unknown run", func(t *testing.T) {
		_, _, err := execute(t, "replay", "--db", dbPath, "--run", "nope", "--builtin", "rise")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestDiffFirings(t *testing.T) {
	f := func(seq int64, rule string) rewrite.Firing {
		return rewrite.Firing{RunID: "a", Seq: seq, Rule: rule, Root: "c0"}
	}
	recorded := []rewrite.Firing{f(1, "beta"), f(2, "eta")}

	same := []rewrite.Firing{f(1, "beta"), f(2, "eta")}
	for i := range same {
		same[i].RunID = "b"
	}
	assert.Nil(t, diffFirings(recorded, same, false), "run ids are ignored")

	changed := []rewrite.Firing{f(1, "beta"), f(2, "let-unused")}
	d := diffFirings(recorded, changed, false)
	require.NotNil(t, d)
	assert.Equal(t, int64(2), d.Seq)
	assert.Equal(t, "let-unused", d.Replayed.Rule)

	longer := append(same, f(3, "beta"))
	assert.NotNil(t, diffFirings(recorded, longer, false))
	assert.Nil(t, diffFirings(recorded, longer, true), "a partial log is a prefix")

	d = diffFirings(recorded, same[:1], true)
	require.NotNil(t, d)
	assert.Nil(t, d.Replayed)
	assert.True(t, strings.HasPrefix(formatFiring(d.Replayed), "(none)"))
}
