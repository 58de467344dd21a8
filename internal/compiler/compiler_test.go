package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

func rulesDir(name string) string {
	return filepath.Join("..", "..", "testdata", "rules", name)
}

func TestCompileRuleBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		rule: eta: {
			lhs: "(lam $x (app ?b $x))"
			rhs: "?b"
			unless_free: [{var: "?b", slot: "$x"}]
		}
	`)
	require.NoError(t, v.Err())

	r, err := CompileRule(v.LookupPath(cue.ParsePath("rule.eta")))
	require.NoError(t, err)

	assert.Equal(t, "eta", r.Name)
	assert.Equal(t, "(lam $1 (app ?b $1))", r.LHS.String())
	assert.Equal(t, "?b", r.RHS.String())
	require.Len(t, r.Conditions, 1)
	assert.Equal(t, rewrite.Condition{Var: "?b", Slot: 1, Free: false}, r.Conditions[0])
	assert.Empty(t, r.AnyOf)
}

func TestCompileRuleQuotedName(t *testing.T) {
	rules, err := CompileString(`
		rule: "let-var-same": {
			lhs: "(let $x ?e $x)"
			rhs: "?e"
		}
	`)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "let-var-same", rules[0].Name)
}

func TestCompileRuleSharesSlotsBetweenSides(t *testing.T) {
	rules, err := CompileString(`
		rule: "let-lam-diff": {
			lhs: "(let $x ?e (lam $y ?b))"
			rhs: "(lam $y (let $x ?e ?b))"
			when_free: [{var: "?b", slot: "$x"}]
		}
	`)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.True(t, pattern.Slots(r.LHS).Equal(pattern.Slots(r.RHS)))
	assert.Equal(t, rewrite.Condition{Var: "?b", Slot: 1, Free: true}, r.Conditions[0])
}

func TestCompileRuleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing lhs",
			src:  `rule: r: { rhs: "?a" }`,
			want: "lhs is required",
		},
		{
			name: "bad pattern",
			src:  `rule: r: { lhs: "(add ?a", rhs: "?a" }`,
			want: "unclosed '('",
		},
		{
			name: "unbound rhs variable",
			src:  `rule: r: { lhs: "(add ?a ?b)", rhs: "?c" }`,
			want: "?c is not bound",
		},
		{
			name: "condition slot not in lhs",
			src:  `rule: r: { lhs: "(add ?a ?b)", rhs: "?a", unless_free: [{var: "?a", slot: "$z"}] }`,
			want: "slot $z does not occur in lhs",
		},
		{
			name: "condition slot without dollar",
			src:  `rule: r: { lhs: "(lam $x ?a)", rhs: "?a", unless_free: [{var: "?a", slot: "x"}] }`,
			want: "must start with $",
		},
		{
			name: "incomplete condition",
			src:  `rule: r: { lhs: "(lam $x ?a)", rhs: "?a", unless_free: [{var: "?a"}] }`,
			want: "condition needs both var and slot",
		},
		{
			name: "lhs is a variable",
			src:  `rule: r: { lhs: "?a", rhs: "(add ?a 0)" }`,
			want: "must be a node pattern",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "r", ce.Rule)
		})
	}
}

func TestCompileStringCollectsAllErrors(t *testing.T) {
	rules, err := CompileString(`
		rule: good: { lhs: "(add ?a ?b)", rhs: "(add ?b ?a)" }
		rule: bad1: { lhs: "(add ?a ?b)", rhs: "?c" }
		rule: bad2: { rhs: "?a" }
	`)
	require.Error(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "good", rules[0].Name)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestCompileStringNoRules(t *testing.T) {
	_, err := CompileString(`other: 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rules found")
}

func TestLoadRulesRise(t *testing.T) {
	rules, err := LoadRules(rulesDir("rise"))
	require.NoError(t, err)
	require.Len(t, rules, len(rewrite.RiseRules()))

	byName := make(map[string]*rewrite.Rule)
	for _, r := range rules {
		byName[r.Name] = r
	}
	for _, want := range rewrite.RiseRules() {
		got, ok := byName[want.Name]
		require.True(t, ok, "missing rule %s", want.Name)
		assert.Equal(t, want.LHS.String(), got.LHS.String(), want.Name)
		assert.Equal(t, want.RHS.String(), got.RHS.String(), want.Name)
		assert.Equal(t, want.Conditions, got.Conditions, want.Name)
		assert.Equal(t, want.AnyOf, got.AnyOf, want.Name)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := t.TempDir()
	_, err = LoadRules(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files found")

	file := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(file, []byte("rule: {}"), 0o644))
	_, err = LoadRules(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestValidateRules(t *testing.T) {
	a := rewrite.MustRule("a", pattern.FromExpr(mustExpr(t, "(add 1 2)")), pattern.FromExpr(mustExpr(t, "(add 1 2)")))
	b := rewrite.MustRule("a", pattern.FromExpr(mustExpr(t, "(add 1 2)")), pattern.FromExpr(mustExpr(t, "(add 2 1)")))

	errs := ValidateRules([]*rewrite.Rule{a, b})
	require.Len(t, errs, 2)
	assert.Equal(t, ErrIdentityRule, errs[0].Code)
	assert.Equal(t, ErrDuplicateRule, errs[1].Code)
	assert.Equal(t, "[E101] a: duplicate rule name", errs[1].Error())
}

func TestAnalyzeCycles(t *testing.T) {
	rules, err := CompileString(`
		rule: "add-comm": { lhs: "(add ?a ?b)", rhs: "(add ?b ?a)" }
		rule: "transpose-pair": { lhs: "(transpose (transpose ?x))", rhs: "?x" }
		rule: "to-let": { lhs: "(app (lam $x ?b) ?t)", rhs: "(let $x ?t ?b)" }
		rule: "from-let": { lhs: "(let $x ?t ?b)", rhs: "(app (lam $x ?b) ?t)" }
	`)
	require.NoError(t, err)

	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 2)

	assert.Equal(t, []string{"add-comm", "add-comm"}, warnings[0].Path)
	assert.Equal(t, "info", warnings[0].Level)

	assert.Equal(t, []string{"to-let", "from-let", "to-let"}, warnings[1].Path)
	assert.Equal(t, "warning", warnings[1].Level)

	assert.Empty(t, AnalyzeCycles(nil))
}

func mustExpr(t *testing.T, src string) lang.RecExpr {
	t.Helper()
	e, err := syntax.NewParser(ir.NewSlotSource()).ParseExpr(src)
	require.NoError(t, err)
	return e
}
