// Package metrics is the narrow metrics surface the onboarding core depends
// on. Backends (Datadog, or Nop in tests and offline runs) implement Backend;
// the core only calls the Record helpers below.
package metrics

import "time"

// Metric names emitted by the core.
const (
	TransitionTotal         = "onboard_transition_total"
	CommitTotal             = "onboard_commit_total"
	MalformedRowsTotal      = "onboard_malformed_rows_total"
	PipelineDurationSeconds = "onboard_pipeline_duration_seconds"
)

// Labels are metric dimensions. Keep cardinality low: states, formats and
// statuses only, never file names or hosts.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }

// OrNop returns b, or Nop when b is nil.
func OrNop(b Backend) Backend {
	if b == nil {
		return Nop{}
	}
	return b
}

// RecordTransition counts one state change.
func RecordTransition(b Backend, from, to string) {
	b.IncCounter(TransitionTotal, 1, Labels{"from": from, "to": to})
}

// RecordCommit counts one commit attempt. status is "ok" or "error".
func RecordCommit(b Backend, kind, status string) {
	b.IncCounter(CommitTotal, 1, Labels{"kind": kind, "status": status})
}

// RecordPipeline observes one pipeline run and the malformed rows it found.
func RecordPipeline(b Backend, format string, err error, d time.Duration, malformed int) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.ObserveHistogram(PipelineDurationSeconds, d.Seconds(), Labels{"format": format, "status": status})
	if malformed > 0 {
		b.IncCounter(MalformedRowsTotal, float64(malformed), Labels{"format": format})
	}
}
