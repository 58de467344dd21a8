package compiler

import (
	"fmt"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateRule = "E101" // two rules share a name
	ErrIdentityRule  = "E102" // lhs and rhs are the same pattern
)

// ValidationError represents a rule-set validation error.
type ValidationError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Rule, e.Message)
}

// ValidateRules checks a rule set as a whole.
// Returns all errors found (does not fail-fast).
func ValidateRules(rules []*rewrite.Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for _, r := range rules {
		if seen[r.Name] {
			errs = append(errs, ValidationError{
				Rule:    r.Name,
				Message: "duplicate rule name",
				Code:    ErrDuplicateRule,
			})
		}
		seen[r.Name] = true

		if r.LHS.String() == r.RHS.String() && len(r.Conditions) == 0 && len(r.AnyOf) == 0 {
			errs = append(errs, ValidationError{
				Rule:    r.Name,
				Message: fmt.Sprintf("rewrites %v to itself", r.LHS),
				Code:    ErrIdentityRule,
			})
		}
	}
	return errs
}
