package rewrite

import "sync"

// MatchDetector remembers which (rule, match) pairs a run has applied.
//
// A match applied in an earlier iteration is skipped in later ones.
//
// Matches are keyed by pattern.Match.Hash, which is computed on the
// canonical form of the match, so fresh binder names do not defeat the
// check.
type MatchDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[run_id]map[rule:match_hash]bool
}

// NewMatchDetector creates an empty detector.
func NewMatchDetector() *MatchDetector {
	return &MatchDetector{
		history: make(map[string]map[string]bool),
	}
}

// Seen reports whether (rule, matchHash) has been recorded for the run.
func (d *MatchDetector) Seen(runID, rule, matchHash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[runID] == nil {
		return false
	}
	return d.history[runID][rule+":"+matchHash]
}

// Record marks (rule, matchHash) as applied in the run.
func (d *MatchDetector) Record(runID, rule, matchHash string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[runID] == nil {
		d.history[runID] = make(map[string]bool)
	}
	d.history[runID][rule+":"+matchHash] = true
}

// Clear removes all history for a run.
func (d *MatchDetector) Clear(runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.history, runID)
}

// RunHistorySize returns the number of pairs recorded for a run.
func (d *MatchDetector) RunHistorySize(runID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history[runID])
}
