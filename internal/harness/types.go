package harness

import (
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
	"github.com/marcusrossel/slotted-egraphs/internal/store"
)

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Errors contains one message per failed assertion.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stop is why the run ended.
	Stop rewrite.StopReason `json:"stop"`

	// Iterations is the number of iterations run.
	Iterations int `json:"iterations"`

	// Firings counts applied matches per rule, read back from the run log.
	Firings []store.RuleCount `json:"firings"`

	// Extracted is the smallest term of the scenario term after the run.
	Extracted string `json:"extracted"`

	Classes int `json:"classes"`
	Nodes   int `json:"nodes"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Firings: []store.RuleCount{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
