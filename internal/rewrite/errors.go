package rewrite

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running rules.
//
// Runtime errors include:
//   - Quota exceeded: the graph grew past the class quota
//   - Cancelled: the context was done between iterations
//   - Invalid rule: a rule cannot be applied as written
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Rule identifies the rule (for invalid rule errors).
	Rule string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQuotaExceeded indicates the graph exceeded the class quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeCancelled indicates the run's context was done.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"

	// ErrCodeInvalidRule indicates a rule failed validation.
	ErrCodeInvalidRule RuntimeErrorCode = "INVALID_RULE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.Rule != "" {
		return fmt.Sprintf("%s: %s (run=%s, rule=%s)", e.Code, e.Message, e.RunID, e.Rule)
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and QuotaError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeQuotaExceeded {
		return true
	}
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsCancelled returns true if the run stopped because its context was done.
func IsCancelled(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCancelled
	}
	return false
}

// NewCancelledError creates a RuntimeError for a cancelled run.
func NewCancelledError(runID string, iteration int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCancelled,
		Message: fmt.Sprintf("run cancelled before iteration %d", iteration),
		RunID:   runID,
		Details: map[string]string{
			"iteration": fmt.Sprintf("%d", iteration),
		},
		Err: cause,
	}
}

// NewInvalidRuleError creates a RuntimeError for a rule that failed
// validation.
func NewInvalidRuleError(rule, message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRule,
		Message: message,
		Rule:    rule,
	}
}
