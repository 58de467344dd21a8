package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the part of a Result that golden files pin down.
// Per-iteration statistics are left out: they describe how the run got
// there, not where it ended.
type Snapshot struct {
	Scenario  string `json:"scenario"`
	Pass      bool   `json:"pass"`
	Stop      string `json:"stop"`
	Extracted string `json:"extracted"`
	Classes   int    `json:"classes"`
	Nodes     int    `json:"nodes"`
}

// NewSnapshot captures the golden part of result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		Scenario:  name,
		Pass:      result.Pass,
		Stop:      string(result.Stop),
		Extracted: result.Extracted,
		Classes:   result.Classes,
		Nodes:     result.Nodes,
	}
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the snapshot of result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
