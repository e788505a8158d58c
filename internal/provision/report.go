package provision

import (
	"time"
)

// Status is the outcome of one step in one run.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// Result records what happened to a step.
type Result struct {
	Step     string
	Status   Status
	Message  string
	Err      error
	Duration time.Duration
}

// Report is the ordered record of a run. It is built by the orchestrator and
// cannot be modified once Run returns.
type Report struct {
	runID      string
	startedAt  time.Time
	finishedAt time.Time
	results    []Result
	halted     bool
	err        error
}

// RunID identifies the run.
func (r *Report) RunID() string { return r.runID }

// StartedAt is when the run began.
func (r *Report) StartedAt() time.Time { return r.startedAt }

// FinishedAt is when the run ended.
func (r *Report) FinishedAt() time.Time { return r.finishedAt }

// Results returns a copy of the per-step results, in execution order.
func (r *Report) Results() []Result {
	return append([]Result(nil), r.results...)
}

// Halted reports whether the run stopped before the last step.
func (r *Report) Halted() bool { return r.halted }

// Err is the error that ended the run early, if any.
func (r *Report) Err() error { return r.err }

// Count returns how many results have the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Status returns the status recorded for a step.
func (r *Report) Status(step string) (Status, bool) {
	for _, res := range r.results {
		if res.Step == step {
			return res.Status, true
		}
	}
	return "", false
}
