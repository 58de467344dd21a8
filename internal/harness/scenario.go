package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marcusrossel/slotted-egraphs/internal/compiler"
)

// Scenario defines a rewrite test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Builtin selects a rule set compiled into the binary. Only "rise" is
	// known.
	Builtin string `yaml:"builtin,omitempty"`

	// Rules lists directories of CUE rule files.
	// Paths are relative to the scenario file location.
	Rules []string `yaml:"rules,omitempty"`

	// InlineRules declares rules in the scenario itself.
	InlineRules []compiler.RuleSpec `yaml:"inline_rules,omitempty"`

	// Term is the term the rules rewrite.
	Term string `yaml:"term"`

	// Iterations bounds the run. Zero means rewrite.DefaultMaxIterations.
	Iterations int `yaml:"iterations,omitempty"`

	// Assertions are checked after the run.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion is a fact checked against the graph after the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "equivalent": Left and Right are in the same class
	// - "not_equivalent": Left and Right are in different classes
	// - "extracts_to": the smallest term of Term is alpha-equivalent to Expect
	// - "class_count": the graph has exactly Count classes
	// - "invariants": the e-graph invariants hold
	Type string `yaml:"type"`

	// Left and Right are terms (used by equivalent, not_equivalent).
	Left  string `yaml:"left,omitempty"`
	Right string `yaml:"right,omitempty"`

	// Term is the extracted term (used by extracts_to).
	// Defaults to the scenario term.
	Term string `yaml:"term,omitempty"`

	// Expect is the expected smallest term (used by extracts_to).
	Expect string `yaml:"expect,omitempty"`

	// Count is the expected number of classes (used by class_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEquivalent    = "equivalent"
	AssertNotEquivalent = "not_equivalent"
	AssertExtractsTo    = "extracts_to"
	AssertClassCount    = "class_count"
	AssertInvariants    = "invariants"
)

// BuiltinRise selects rewrite.RiseRules.
const BuiltinRise = "rise"

// LoadScenario reads and parses a scenario YAML file.
// Rule directories are resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve rule paths relative to the scenario file BEFORE validation
	base := filepath.Dir(path)
	for i, dir := range scenario.Rules {
		if !filepath.IsAbs(dir) {
			scenario.Rules[i] = filepath.Join(base, dir)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without resolving or checking rule
// directories.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Term == "" {
		return fmt.Errorf("term is required")
	}

	if s.Builtin != "" && s.Builtin != BuiltinRise {
		return fmt.Errorf("unknown builtin rule set %q", s.Builtin)
	}

	if s.Builtin == "" && len(s.Rules) == 0 && len(s.InlineRules) == 0 {
		return fmt.Errorf("one of builtin, rules or inline_rules is required")
	}

	if s.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	// Validate rule paths exist
	for _, dir := range s.Rules {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("rule directory not found: %s", dir)
		}
	}

	for i, r := range s.InlineRules {
		if r.Name == "" {
			return fmt.Errorf("inline_rules[%d]: name is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEquivalent, AssertNotEquivalent:
		if a.Left == "" || a.Right == "" {
			return fmt.Errorf("assertions[%d]: left and right are required for %s", index, a.Type)
		}
	case AssertExtractsTo:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for extracts_to", index)
		}
	case AssertClassCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for class_count", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
