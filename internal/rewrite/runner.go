package rewrite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/marcusrossel/slotted-egraphs/internal/egraph"
	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/pattern"
)

// Default limits for a Runner.
const (
	DefaultMaxIterations = 30
	DefaultMaxClasses    = 10000
)

// StopReason says why a run ended.
type StopReason string

const (
	StopSaturated      StopReason = "saturated"
	StopIterationLimit StopReason = "iteration_limit"
	StopClassLimit     StopReason = "class_limit"
	StopCancelled      StopReason = "cancelled"
)

// Iteration summarizes one search/apply/rebuild round.
type Iteration struct {
	Index              int
	Matches            int // matches found by search
	Skipped            int // matches already applied earlier in the run
	Rejected           int // matches whose conditions did not hold
	Applied            int // matches instantiated and unioned
	Unions             int // class merges, including congruence and repairs
	SelfUnionsRejected int
	Repairs            int // merges made by Rebuild
	Allocated          int // classes allocated, by Add or by Union
	Classes            int
	Nodes              int
}

// Firing is one applied match.
type Firing struct {
	RunID     string
	Seq       int64
	Iteration int
	Rule      string
	MatchHash string
	Root      string
	Merged    bool
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID            string
	Term          string // source text of the term, if known
	EngineVersion string
	RuleSetHash   string
	Rules         []string
	MaxIterations int
	MaxClasses    int
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	Iterations []Iteration
	Stop       StopReason
	Firings    int
	Classes    int
	Nodes      int
}

// Recorder persists the progress of runs. Implemented by store.Store.
//
// A Recorder error aborts the run.
type Recorder interface {
	BeginRun(ctx context.Context, info RunInfo) error
	RecordFiring(ctx context.Context, f Firing) error
	RecordIteration(ctx context.Context, runID string, it Iteration) error
	EndRun(ctx context.Context, r *Report) error
}

// Metrics observes runs. Implemented by metrics.Metrics.
type Metrics interface {
	ObserveFiring(rule string)
	ObserveIteration(it Iteration)
}

// Runner applies rules to a graph until saturation or a limit.
//
// INVARIANTS:
//   - rules order NEVER changes after construction
//   - a (rule, match) pair is applied at most once per run
type Runner struct {
	rules         []*Rule
	maxIterations int
	maxClasses    int
	logger        *slog.Logger
	metrics       Metrics
	recorder      Recorder
	ids           RunIDGenerator
	clock         *Clock
	detector      *MatchDetector
	term          string
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxIterations sets the iteration limit.
//
// Default: 30 iterations (DefaultMaxIterations)
func WithMaxIterations(n int) Option {
	return func(r *Runner) {
		r.maxIterations = n
	}
}

// WithMaxClasses sets the class quota checked after every iteration.
//
// Default: 10000 classes (DefaultMaxClasses)
func WithMaxClasses(n int) Option {
	return func(r *Runner) {
		r.maxClasses = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics reports runs to m.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRecorder persists runs to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.ids = g
	}
}

// WithTerm records the source text of the rewritten term with the run.
func WithTerm(src string) Option {
	return func(r *Runner) {
		r.term = src
	}
}

// NewRunner creates a runner for rules. The rules slice is copied.
func NewRunner(rules []*Rule, opts ...Option) (*Runner, error) {
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	r := &Runner{
		rules:         append([]*Rule(nil), rules...),
		maxIterations: DefaultMaxIterations,
		maxClasses:    DefaultMaxClasses,
		logger:        slog.Default(),
		ids:           UUIDv7Generator{},
		clock:         NewClock(),
		detector:      NewMatchDetector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rules returns the runner's rules in application order.
func (r *Runner) Rules() []*Rule {
	return append([]*Rule(nil), r.rules...)
}

// RuleSetHash identifies the ordered rule list.
func (r *Runner) RuleSetHash() string {
	hashes := make([]string, len(r.rules))
	for i, rule := range r.rules {
		hashes[i] = rule.Hash()
	}
	sum := sha256.Sum256([]byte(strings.Join(hashes, "\n")))
	return hex.EncodeToString(sum[:])
}

type candidate struct {
	rule  *Rule
	match pattern.Match
	hash  string
}

// Run saturates g.
//
// The returned Report is non-nil even when err is non-nil, and describes
// every iteration that completed. Cancellation is checked between
// iterations; a cancelled run returns a RuntimeError with code
// ErrCodeCancelled. A run that exceeds the class quota returns a
// *QuotaError.
func (r *Runner) Run(ctx context.Context, g *egraph.EGraph) (*Report, error) {
	runID := r.ids.Generate()
	defer r.detector.Clear(runID)

	report := &Report{RunID: runID, Stop: StopIterationLimit}
	quota := NewClassQuota(r.maxClasses)

	if r.recorder != nil {
		info := RunInfo{
			ID:            runID,
			Term:          r.term,
			EngineVersion: ir.EngineVersion,
			RuleSetHash:   r.RuleSetHash(),
			MaxIterations: r.maxIterations,
			MaxClasses:    r.maxClasses,
		}
		for _, rule := range r.rules {
			info.Rules = append(info.Rules, rule.Name)
		}
		if err := r.recorder.BeginRun(ctx, info); err != nil {
			return report, err
		}
	}

	r.logger.Info("run starting",
		"run", runID,
		"rules", len(r.rules),
		"classes", g.NumClasses(),
	)

	runErr := r.loop(ctx, g, runID, quota, report)

	report.Classes = g.NumClasses()
	report.Nodes = g.NumNodes()
	r.logger.Info("run finished",
		"run", runID,
		"stop", report.Stop,
		"iterations", len(report.Iterations),
		"firings", report.Firings,
		"classes", report.Classes,
	)

	if r.recorder != nil {
		if err := r.recorder.EndRun(context.WithoutCancel(ctx), report); err != nil && runErr == nil {
			runErr = err
		}
	}
	return report, runErr
}

func (r *Runner) loop(ctx context.Context, g *egraph.EGraph, runID string, quota *ClassQuota, report *Report) error {
	for i := 0; i < r.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			report.Stop = StopCancelled
			return NewCancelledError(runID, i, err)
		}

		it, err := r.iterate(ctx, g, runID, i)
		if err != nil {
			return err
		}
		report.Iterations = append(report.Iterations, it)
		report.Firings += it.Applied

		r.logger.Info("iteration",
			"run", runID,
			"index", i,
			"matches", it.Matches,
			"applied", it.Applied,
			"unions", it.Unions,
			"classes", it.Classes,
		)
		if r.metrics != nil {
			r.metrics.ObserveIteration(it)
		}
		if r.recorder != nil {
			if err := r.recorder.RecordIteration(ctx, runID, it); err != nil {
				return err
			}
		}

		if err := quota.Check(runID, i, it.Classes); err != nil {
			report.Stop = StopClassLimit
			return err
		}
		if it.Unions == 0 && it.Allocated == 0 {
			report.Stop = StopSaturated
			return nil
		}
	}
	return nil
}

// iterate runs one search/apply/rebuild round.
func (r *Runner) iterate(ctx context.Context, g *egraph.EGraph, runID string, index int) (Iteration, error) {
	it := Iteration{Index: index}
	before := g.Stats()

	// Search against a stable graph; nothing is applied until every rule
	// has been matched.
	var todo []candidate
	for _, rule := range r.rules {
		for _, m := range pattern.Search(g, rule.LHS) {
			it.Matches++
			h := m.Hash(rule.Hash())
			if r.detector.Seen(runID, rule.Name, h) {
				it.Skipped++
				continue
			}
			todo = append(todo, candidate{rule: rule, match: m, hash: h})
		}
	}

	for _, c := range todo {
		r.detector.Record(runID, c.rule.Name, c.hash)

		m := c.match.Rename(c.rule.Slots(), g.SlotSource())
		m.Vars = normalizeVars(g, m.Vars)
		if !c.rule.Admits(m.Vars) {
			it.Rejected++
			continue
		}
		rhs := pattern.Instantiate(g, c.rule.RHS, m.Vars)
		merged := g.Union(m.Root, rhs)
		it.Applied++

		if r.metrics != nil {
			r.metrics.ObserveFiring(c.rule.Name)
		}
		if r.recorder != nil {
			f := Firing{
				RunID:     runID,
				Seq:       r.clock.Next(),
				Iteration: index,
				Rule:      c.rule.Name,
				MatchHash: c.hash,
				Root:      m.Root.String(),
				Merged:    merged,
			}
			if err := r.recorder.RecordFiring(ctx, f); err != nil {
				return it, err
			}
		}
		r.logger.Debug("rule fired",
			"run", runID,
			"rule", c.rule.Name,
			"root", m.Root.String(),
			"merged", merged,
		)
	}

	it.Repairs = g.Rebuild()

	after := g.Stats()
	it.Unions = after.Unions - before.Unions
	it.SelfUnionsRejected = after.SelfUnionsRejected - before.SelfUnionsRejected
	it.Allocated = after.ClassesAllocated - before.ClassesAllocated
	it.Classes = g.NumClasses()
	it.Nodes = g.NumNodes()
	return it, nil
}

// normalizeVars resolves every binding of vars through the union-find.
// Earlier unions in the same iteration may have shed slots from a bound
// class, and conditions must see the live slot set.
func normalizeVars(g *egraph.EGraph, vars map[string]ir.AppliedID) map[string]ir.AppliedID {
	out := make(map[string]ir.AppliedID, len(vars))
	for k, v := range vars {
		out[k] = g.Normalize(v)
	}
	return out
}
