package runner

import (
	"time"

	"github.com/neox5/querygauge/internal/gauge"
)

// Outcome is the result of one gauge within a run.
type Outcome struct {
	Group   string
	Metric  string
	Result  gauge.Result
	Err     error
	Skipped bool
}

// Failed reports whether the gauge was attempted and failed.
func (o Outcome) Failed() bool {
	return !o.Skipped && o.Err != nil
}

// Report summarizes a run. Outcomes follow manifest order.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome
}

// Attempted counts gauges that were started.
func (r Report) Attempted() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped {
			n++
		}
	}
	return n
}

// Failed counts gauges that ended with a gauge-scoped error.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Skipped counts gauges never started because the run was cancelled.
func (r Report) Skipped() int {
	return len(r.Outcomes) - r.Attempted()
}

// Points counts data points accepted by the sink.
func (r Report) Points() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Result.Points
	}
	return n
}

// PublishFailures counts data points the sink rejected.
func (r Report) PublishFailures() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Result.PublishFailures
	}
	return n
}

// RowsDropped counts rows dropped during projection.
func (r Report) RowsDropped() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Result.Stats.Dropped
	}
	return n
}
