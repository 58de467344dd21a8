package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/hashicorp/go-multierror"

	"github.com/marcusrossel/slotted-egraphs/internal/compiler"
	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// BuiltinRise names rewrite.RiseRules on the command line.
const BuiltinRise = "rise"

// LoadError represents an error that occurred while loading rules.
type LoadError struct {
	Code    string
	Rule    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Rule != "" {
		msg = fmt.Sprintf("rule %s: %s", e.Rule, e.Message)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// LoadRuleSet returns the builtin rule set (if any) followed by the rules
// of every directory, in order.
//
// The returned rules are usable only when the error list is empty. Load
// errors of one directory do not stop the others from being read.
func LoadRuleSet(builtin string, dirs []string) ([]*rewrite.Rule, []error) {
	var (
		rules []*rewrite.Rule
		errs  []error
	)

	switch builtin {
	case "":
	case BuiltinRise:
		rules = append(rules, rewrite.RiseRules()...)
	default:
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("unknown builtin rule set %q", builtin)})
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)})
			continue
		}
		files, err := compiler.FindCUEFiles(dir)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeScanError, Message: err.Error()})
			continue
		}
		if len(files) == 0 {
			errs = append(errs, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)})
			continue
		}

		rs, err := compiler.LoadRules(dir)
		rules = append(rules, rs...)
		if err == nil {
			continue
		}
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				errs = append(errs, convertCompileError(e, dir))
			}
			continue
		}
		errs = append(errs, convertCompileError(err, dir))
	}

	if len(rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRules, Message: "no rules: pass --rules or --builtin"})
	}

	for _, v := range compiler.ValidateRules(rules) {
		// Duplicates within one directory were already reported by LoadRules.
		if !containsError(errs, v) {
			errs = append(errs, convertCompileError(v, ""))
		}
	}
	return rules, errs
}

func containsError(errs []error, v compiler.ValidationError) bool {
	for _, e := range errs {
		var le *LoadError
		if errors.As(e, &le) && le.Code == v.Code && le.Rule == v.Rule {
			return true
		}
	}
	return false
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Rule:    compileErr.Rule,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	var validationErr compiler.ValidationError
	if errors.As(err, &validationErr) {
		return &LoadError{
			Code:    validationErr.Code,
			Rule:    validationErr.Rule,
			Message: validationErr.Message,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or build failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeNoRules     = "E006" // Empty rule set
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeParse       = "E008" // Term does not parse
	ErrCodeDatabase    = "E009" // Run log error
	ErrCodeMismatch    = "E010" // Replay differs from the run log

	// Rule errors. E101 and E102 come from compiler.ValidateRules.
	ErrCodeInvalidPattern   = "E110" // lhs or rhs does not parse
	ErrCodeInvalidCondition = "E111" // malformed slot condition
	ErrCodeInvalidRule      = "E112" // rule rejected by rewrite.Rule.Validate
	ErrCodeMissingField     = "E113" // required field missing
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "lhs", "rhs":
		return ErrCodeInvalidPattern
	case "when_free", "unless_free", "any_free":
		return ErrCodeInvalidCondition
	case "rule":
		return ErrCodeInvalidRule
	case "name":
		return ErrCodeMissingField
	default:
		return ErrCodeGeneric
	}
}
