// Package repository persists run results to a SQL database.
package repository

import (
	"context"
	"time"

	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
)

// WorkflowResult is the aggregate of one process and cohort.
type WorkflowResult struct {
	Process      string
	Cohort       string
	Distribution model.Distribution
	Aggregates   []model.BinAggregate
}

// Run is everything one run persists.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	AsOf       string
	Failures   int
	Workflow   []WorkflowResult
	Periods    []period.Result
}

// RunSummary is a stored run header.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	AsOf       string
	Jobs       int
	Failures   int
}

// Store provides write access to run results.
type Store interface {
	// SaveRun writes a run and all its rows in one transaction.
	SaveRun(ctx context.Context, run Run) error
	// LastRun returns the most recently started run.
	// Returns ErrNotFound when nothing was stored yet.
	LastRun(ctx context.Context) (RunSummary, error)
	Close() error
}
