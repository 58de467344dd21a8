package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/compiler"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

const scenarioDir = "../../testdata/scenarios"

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "arith.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "arith", s.Name)
	assert.Equal(t, "(add 1 (add 2 3))", s.Term)
	assert.Equal(t, 10, s.Iterations)
	require.Len(t, s.Rules, 1)
	assert.Equal(t, filepath.Join(scenarioDir, "../rules/arith"), s.Rules[0], "rule dirs resolve relative to the file")
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, AssertNotEquivalent, s.Assertions[2].Type)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nbuiltin: rise\nterm: a\nassertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nbuiltin: rise\nterm: a\nassertions: [{type: invariants}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing term",
			yaml:    "name: x\ndescription: d\nbuiltin: rise\nassertions: [{type: invariants}]\n",
			wantErr: "term is required",
		},
		{
			name:    "no rules",
			yaml:    "name: x\ndescription: d\nterm: a\nassertions: [{type: invariants}]\n",
			wantErr: "one of builtin, rules or inline_rules is required",
		},
		{
			name:    "unknown builtin",
			yaml:    "name: x\ndescription: d\nbuiltin: lisp\nterm: a\nassertions: [{type: invariants}]\n",
			wantErr: `unknown builtin rule set "lisp"`,
		},
		{
			name:    "missing rule dir",
			yaml:    "name: x\ndescription: d\nrules: [nowhere]\nterm: a\nassertions: [{type: invariants}]\n",
			wantErr: "rule directory not found",
		},
		{
			name:    "no assertions",
			yaml:    "name: x\ndescription: d\nbuiltin: rise\nterm: a\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "equivalent without right",
			yaml:    "name: x\ndescription: d\nbuiltin: rise\nterm: a\nassertions: [{type: equivalent, left: a}]\n",
			wantErr: "assertions[0]: left and right are required for equivalent",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nbuiltin: rise\nterm: a\nassertions: [{type: smaller}]\n",
			wantErr: `assertions[0]: unknown assertion type "smaller"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_Sorted(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)
	assert.Equal(t, "arith", scenarios[0].Name)

	_, err = LoadScenarios(t.TempDir())
	assert.ErrorContains(t, err, "no scenarios found")
}

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Positive(t, result.Iterations)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "transpose-pair.yaml"))
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, s))
}

func TestRun_RecordsFirings(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "transpose-pair.yaml"))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.NotEmpty(t, result.Firings)
	assert.Equal(t, "remove-transpose-pair", result.Firings[0].Rule)
	assert.Positive(t, result.Firings[0].Merges)
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "every assertion is wrong",
		InlineRules: []compiler.RuleSpec{{Name: "add-zero", LHS: "(add ?a 0)", RHS: "?a"}},
		Term:        "(add x 0)",
		Assertions: []Assertion{
			{Type: AssertNotEquivalent, Left: "(add x 0)", Right: "x"},
			{Type: AssertEquivalent, Left: "x", Right: "y"},
			{Type: AssertExtractsTo, Expect: "y"},
			{Type: AssertClassCount, Count: 7},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "assertions[0] not_equivalent")
	assert.Contains(t, result.Errors[1], "assertions[1] equivalent")
	assert.Contains(t, result.Errors[2], "Actual: x")
	assert.Contains(t, result.Errors[3], "Expected: 7 classes")
	assert.Equal(t, "x", result.Extracted)
}

func TestRun_ExtractsUpToBinderNames(t *testing.T) {
	s := &Scenario{
		Name:        "alpha",
		Description: "extraction compares up to binder names",
		InlineRules: []compiler.RuleSpec{{Name: "add-zero", LHS: "(add ?a 0)", RHS: "?a"}},
		Term:        "(lam $x (add $x 0))",
		Assertions: []Assertion{
			{Type: AssertExtractsTo, Expect: "(lam $y $y)"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "(lam $_1 $_1)", result.Extracted)
}

func TestRun_Errors(t *testing.T) {
	base := Scenario{Name: "x", Description: "d", Builtin: BuiltinRise, Term: "(add 1 2)"}

	bad := base
	bad.Term = "(add 1"
	_, err := Run(&bad)
	assert.ErrorContains(t, err, "term:")

	badAssertion := base
	badAssertion.Assertions = []Assertion{{Type: AssertEquivalent, Left: "(lam x)", Right: "1"}}
	_, err = Run(&badAssertion)
	assert.ErrorContains(t, err, "assertions[0].left")

	badRule := base
	badRule.InlineRules = []compiler.RuleSpec{{Name: "r", LHS: "?a", RHS: "1"}}
	_, err = Run(&badRule)
	assert.ErrorContains(t, err, "inline_rules[0]")
}

func TestLoadRuleSet_Order(t *testing.T) {
	s := &Scenario{
		Builtin:     BuiltinRise,
		Rules:       []string{"../../testdata/rules/arith"},
		InlineRules: []compiler.RuleSpec{{Name: "add-zero", LHS: "(add ?a 0)", RHS: "?a"}},
	}
	rules, err := LoadRuleSet(s)
	require.NoError(t, err)

	rise := rewrite.RiseRules()
	require.Len(t, rules, len(rise)+3)
	assert.Equal(t, rise[0].Name, rules[0].Name)
	assert.Equal(t, "add-comm", rules[len(rise)].Name)
	assert.Equal(t, "add-zero", rules[len(rules)-1].Name)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertClassCount, Index: 2, Expected: "3 classes", Actual: "4 classes"}
	assert.Equal(t, "Assertion failed: assertions[2] class_count\n  Expected: 3 classes\n  Actual: 4 classes", err.Error())
}
