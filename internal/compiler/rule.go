// Package compiler turns CUE rule files into rewrite rules.
//
// A rule file declares rules under the top-level "rule" struct:
//
//	rule: eta: {
//		lhs: "(lam $x (app ?b $x))"
//		rhs: "?b"
//		unless_free: [{var: "?b", slot: "$x"}]
//	}
//
// lhs and rhs are s-expression patterns. Slot names are local to one rule
// and shared between its two sides and its conditions. Rules are returned
// in declaration order.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/syntax"
)

// SlotCondition names a pattern variable and a slot, as written in a rule
// file.
type SlotCondition struct {
	Var  string `json:"var" yaml:"var"`
	Slot string `json:"slot" yaml:"slot"`
}

// RuleSpec is the source form of a rule. It is what CUE rule files and
// YAML scenarios declare.
type RuleSpec struct {
	Name       string          `json:"name" yaml:"name"`
	LHS        string          `json:"lhs" yaml:"lhs"`
	RHS        string          `json:"rhs" yaml:"rhs"`
	WhenFree   []SlotCondition `json:"when_free,omitempty" yaml:"when_free,omitempty"`
	UnlessFree []SlotCondition `json:"unless_free,omitempty" yaml:"unless_free,omitempty"`
	AnyFree    []SlotCondition `json:"any_free,omitempty" yaml:"any_free,omitempty"`
}

// CompileRule parses a CUE value into a rule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: beta: { lhs: "...", rhs: "..." }`)
//	r, err := CompileRule(v.LookupPath(cue.ParsePath("rule.beta")))
func CompileRule(v cue.Value) (*rewrite.Rule, error) {
	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	r, err := compileRule(v, name)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			if ce.Rule == "" {
				ce.Rule = name
			}
			if !ce.Pos.IsValid() {
				ce.Pos = v.Pos()
			}
		}
		return nil, err
	}
	return r, nil
}

func compileRule(v cue.Value, name string) (*rewrite.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := RuleSpec{Name: name}
	var err error
	if spec.LHS, err = requiredString(v, "lhs"); err != nil {
		return nil, err
	}
	if spec.RHS, err = requiredString(v, "rhs"); err != nil {
		return nil, err
	}
	if spec.WhenFree, err = parseConditions(v, "when_free"); err != nil {
		return nil, err
	}
	if spec.UnlessFree, err = parseConditions(v, "unless_free"); err != nil {
		return nil, err
	}
	if spec.AnyFree, err = parseConditions(v, "any_free"); err != nil {
		return nil, err
	}
	return BuildRule(spec)
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func parseConditions(v cue.Value, field string) ([]SlotCondition, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []SlotCondition
	for iter.Next() {
		var c SlotCondition
		if err := iter.Value().Decode(&c); err != nil {
			return nil, formatCUEError(err)
		}
		if c.Var == "" || c.Slot == "" {
			return nil, &CompileError{
				Field:   field,
				Message: "condition needs both var and slot",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// BuildRule parses the patterns of spec and builds a validated rule.
func BuildRule(spec RuleSpec) (*rewrite.Rule, error) {
	p := syntax.NewParser(ir.NewSlotSource())

	lhs, err := p.ParsePattern(spec.LHS)
	if err != nil {
		return nil, &CompileError{Field: "lhs", Message: err.Error(), Rule: spec.Name}
	}
	rhs, err := p.ParsePattern(spec.RHS)
	if err != nil {
		return nil, &CompileError{Field: "rhs", Message: err.Error(), Rule: spec.Name}
	}

	lhsSlots := pattern.Slots(lhs)
	convert := func(field string, cs []SlotCondition, free bool) ([]rewrite.Condition, error) {
		var out []rewrite.Condition
		for _, c := range cs {
			if !strings.HasPrefix(c.Slot, "$") {
				return nil, &CompileError{Field: field, Message: fmt.Sprintf("slot %q must start with $", c.Slot), Rule: spec.Name}
			}
			s := p.Slot(c.Slot)
			if !lhsSlots.Contains(s) {
				return nil, &CompileError{Field: field, Message: fmt.Sprintf("slot %s does not occur in lhs", c.Slot), Rule: spec.Name}
			}
			out = append(out, rewrite.Condition{Var: c.Var, Slot: s, Free: free})
		}
		return out, nil
	}

	when, err := convert("when_free", spec.WhenFree, true)
	if err != nil {
		return nil, err
	}
	unless, err := convert("unless_free", spec.UnlessFree, false)
	if err != nil {
		return nil, err
	}
	anyOf, err := convert("any_free", spec.AnyFree, true)
	if err != nil {
		return nil, err
	}

	r := &rewrite.Rule{
		Name:       spec.Name,
		LHS:        lhs,
		RHS:        rhs,
		Conditions: append(when, unless...),
		AnyOf:      anyOf,
	}
	if err := r.Validate(); err != nil {
		var re *rewrite.RuntimeError
		if errors.As(err, &re) {
			return nil, &CompileError{Field: "rule", Message: re.Message, Rule: spec.Name}
		}
		return nil, err
	}
	return r, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Rule    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	field := e.Field
	if e.Rule != "" {
		field = "rule." + e.Rule + "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			field, e.Message)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
