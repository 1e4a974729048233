package models

import "time"

// RunKind names the operation behind an [AnalysisRun].
type RunKind string

const (
	RunAnalyze   RunKind = "analyze"
	RunReAnalyze RunKind = "re-analyze"
)

// AnalysisRun summarizes one analyze or re-analyze invocation.
type AnalysisRun struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Target     string    `json:"target"` // local path for analyze, backend filename for re-analyze
	Model      string    `json:"model"`
	Completed  []string  `json:"completed"` // filenames folded into the library
	Errors     []string  `json:"errors,omitempty"`
	Skipped    int       `json:"skipped"`
	Failure    string    `json:"failure,omitempty"` // transport failure that aborted the run
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the run ended without a transport failure or a reported error.
func (r *AnalysisRun) Succeeded() bool {
	return r.Failure == "" && len(r.Errors) == 0
}

// Duration returns the wall time of the run.
func (r *AnalysisRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
