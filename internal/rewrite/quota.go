package rewrite

import "fmt"

// ClassQuota enforces a maximum number of live classes in the graph.
//
// The quota is checked after every iteration's rebuild. It catches rule
// sets that grow the graph without bound, such as expansion rules, before
// the iteration limit is reached.
//
// CRITICAL DISTINCTION from Match De-duplication:
//   - De-duplication: skips a (rule, match) pair that already fired
//   - Class quota: stops the run when distinct new work keeps growing
//
// Together with the iteration limit they guarantee termination.
type ClassQuota struct {
	maxClasses int
	peak       int
}

// NewClassQuota creates a quota with the given limit.
func NewClassQuota(maxClasses int) *ClassQuota {
	return &ClassQuota{maxClasses: maxClasses}
}

// Check records the current class count and validates it against the
// limit. Returns QuotaError if the limit is exceeded.
func (q *ClassQuota) Check(runID string, iteration, classes int) error {
	if classes > q.peak {
		q.peak = classes
	}
	if classes > q.maxClasses {
		return &QuotaError{
			RunID:     runID,
			Iteration: iteration,
			Classes:   classes,
			Limit:     q.maxClasses,
		}
	}
	return nil
}

// Peak returns the largest class count seen by Check.
func (q *ClassQuota) Peak() int {
	return q.peak
}

// MaxClasses returns the limit.
func (q *ClassQuota) MaxClasses() int {
	return q.maxClasses
}

// QuotaError is returned when a run exceeds the class quota.
//
// The run stops at the end of the iteration that crossed the limit. The
// graph is left in its rebuilt state and the partial Report is returned
// alongside the error.
type QuotaError struct {
	RunID     string
	Iteration int
	Classes   int
	Limit     int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("run %s exceeded class quota in iteration %d: %d classes > %d limit",
		e.RunID, e.Iteration, e.Classes, e.Limit)
}

// Code returns the runtime error code for matching.
func (e *QuotaError) Code() RuntimeErrorCode {
	return ErrCodeQuotaExceeded
}
