package service

import (
	"fmt"
	"time"

	"github.com/okian/regflow/internal/adapters/notify"
	"github.com/okian/regflow/internal/adapters/report"
)

// Job kinds.
const (
	KindWorkflow = "workflow"
	KindStatus   = "status"
	KindPeriod   = "period"
)

// JobReport is the outcome of one job.
type JobReport struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Process      string        `json:"process,omitempty"`
	Cohort       string        `json:"cohort,omitempty"`
	Applications int           `json:"applications"`
	Duration     time.Duration `json:"duration_ns"`
	Error        string        `json:"error,omitempty"`
	Skipped      bool          `json:"skipped,omitempty"`
}

// Failed reports whether the job returned an error.
func (j JobReport) Failed() bool { return j.Error != "" }

// LoadReport describes the workflow input of a run.
type LoadReport struct {
	Rows          int `json:"rows"`
	Events        int `json:"events"`
	Dropped       int `json:"dropped"`
	Duplicates    int `json:"duplicates"`
	StatusEntries int `json:"status_entries"`
}

// RunReport is the outcome of one run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	AsOf       string        `json:"as_of"`
	OutputDir  string        `json:"output_dir"`
	Load       LoadReport    `json:"load"`
	Jobs       []JobReport   `json:"jobs"`
	Files      []report.File `json:"files"`
	Errors     []string      `json:"errors,omitempty"`
}

// Failed counts failed jobs.
func (r *RunReport) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Failed() {
			n++
		}
	}
	return n
}

// Applications sums the applications of all workflow jobs.
func (r *RunReport) Applications() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Kind == KindWorkflow {
			n += j.Applications
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Summary converts the report for notification.
func (r *RunReport) Summary() notify.Summary {
	s := notify.Summary{
		RunID:        r.RunID,
		StartedAt:    r.StartedAt,
		Duration:     r.Duration(),
		Jobs:         len(r.Jobs),
		Failed:       r.Failed(),
		Applications: r.Applications(),
		Files:        len(r.Files),
		OutputDir:    r.OutputDir,
	}
	for _, j := range r.Jobs {
		if j.Failed() {
			s.Failures = append(s.Failures, fmt.Sprintf("%s: %s", j.Name, j.Error))
		}
	}
	s.Failures = append(s.Failures, r.Errors...)
	return s
}

func (r *RunReport) manifest() report.Manifest {
	m := report.Manifest{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		AsOf:       r.AsOf,
	}
	for _, j := range r.Jobs {
		m.Jobs = append(m.Jobs, report.JobEntry{
			Name:         j.Name,
			Kind:         j.Kind,
			Applications: j.Applications,
			Seconds:      j.Duration.Seconds(),
			Error:        j.Error,
		})
	}
	return m
}
