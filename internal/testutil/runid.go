package testutil

// RepeatGenerator returns the same run id every time. Runs that reuse an id
// can be compared field by field.
//
// Thread-safety: RepeatGenerator is stateless and safe for concurrent use.
type RepeatGenerator struct {
	id string
}

// NewRepeatGenerator creates a generator for id. An empty id becomes
// "test-run".
func NewRepeatGenerator(id string) RepeatGenerator {
	if id == "" {
		id = "test-run"
	}
	return RepeatGenerator{id: id}
}

// Generate returns the fixed run id.
func (g RepeatGenerator) Generate() string {
	return g.id
}
