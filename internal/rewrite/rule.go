package rewrite

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
)

// Condition constrains the free slots of a matched variable.
//
// With Free set, Slot must occur free in the occurrence bound to Var. With
// Free unset, it must not. Slot names a slot of the rule's patterns; it is
// compared after the match is renamed into the rule's slot names.
type Condition struct {
	Var  string
	Slot ir.Slot
	Free bool
}

// Holds reports whether c is satisfied by vars.
func (c Condition) Holds(vars map[string]ir.AppliedID) bool {
	return vars[c.Var].Slots().Contains(c.Slot) == c.Free
}

func (c Condition) String() string {
	if c.Free {
		return fmt.Sprintf("%s in %s", c.Slot, c.Var)
	}
	return fmt.Sprintf("%s not in %s", c.Slot, c.Var)
}

// Rule rewrites terms matching LHS to RHS.
//
// Every condition in Conditions must hold. If AnyOf is non-empty at least
// one of its conditions must hold as well.
//
// INVARIANTS (checked by Validate):
//   - LHS is a node pattern without substitutions
//   - every variable of RHS and of the conditions is bound by LHS
type Rule struct {
	Name       string
	LHS        pattern.Pattern
	RHS        pattern.Pattern
	Conditions []Condition
	AnyOf      []Condition

	hash  string
	slots *set.Set[ir.Slot]
}

// NewRule builds and validates a rule.
func NewRule(name string, lhs, rhs pattern.Pattern, conds ...Condition) (*Rule, error) {
	r := &Rule{Name: name, LHS: lhs, RHS: rhs, Conditions: conds}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRule is NewRule for rules known to be valid. It panics otherwise.
func MustRule(name string, lhs, rhs pattern.Pattern, conds ...Condition) *Rule {
	r, err := NewRule(name, lhs, rhs, conds...)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the rule's invariants.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return NewInvalidRuleError(r.Name, "rule has no name")
	}
	if r.LHS == nil || r.RHS == nil {
		return NewInvalidRuleError(r.Name, "rule is missing a side")
	}
	if _, ok := r.LHS.(*pattern.Node); !ok {
		return NewInvalidRuleError(r.Name, fmt.Sprintf("left side %v must be a node pattern", r.LHS))
	}
	if pattern.HasSubst(r.LHS) {
		return NewInvalidRuleError(r.Name, "left side must not contain subst")
	}
	bound := set.From(pattern.Vars(r.LHS))
	for _, v := range pattern.Vars(r.RHS) {
		if !bound.Contains(v) {
			return NewInvalidRuleError(r.Name, fmt.Sprintf("right side variable %s is not bound by the left side", v))
		}
	}
	for _, c := range slices.Concat(r.Conditions, r.AnyOf) {
		if !bound.Contains(c.Var) {
			return NewInvalidRuleError(r.Name, fmt.Sprintf("condition variable %s is not bound by the left side", c.Var))
		}
	}
	return nil
}

// Hash identifies the rule by its name and printed sides.
func (r *Rule) Hash() string {
	if r.hash == "" {
		r.hash = ir.RuleHash(r.Name, r.LHS.String(), r.RHS.String())
	}
	return r.hash
}

// Slots returns every slot named by either side of the rule.
func (r *Rule) Slots() *set.Set[ir.Slot] {
	if r.slots == nil {
		r.slots = ir.Union(pattern.Slots(r.LHS), pattern.Slots(r.RHS))
	}
	return r.slots
}

// Admits reports whether the rule's conditions hold for vars.
func (r *Rule) Admits(vars map[string]ir.AppliedID) bool {
	for _, c := range r.Conditions {
		if !c.Holds(vars) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, c := range r.AnyOf {
		if c.Holds(vars) {
			return true
		}
	}
	return false
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s: %v => %v", r.Name, r.LHS, r.RHS)
}
