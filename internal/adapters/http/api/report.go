package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/regflow/internal/adapters/repository"
)

// ReportHandler serves the last run report.
type ReportHandler struct {
	reports ReportProvider
}

// NewReportHandler creates a report handler.
func NewReportHandler(reports ReportProvider) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// HandleReport handles GET /report requests.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, ok := h.reports.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNoReport)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// RunsHandler serves stored run headers.
type RunsHandler struct {
	runs RunLookup
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(runs RunLookup) *RunsHandler {
	return &RunsHandler{runs: runs}
}

type runResponse struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	AsOf       string    `json:"as_of,omitempty"`
	Jobs       int       `json:"jobs"`
	Failures   int       `json:"failures"`
}

// HandleLastRun handles GET /runs/last requests.
func (h *RunsHandler) HandleLastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	run, err := h.runs.LastRun(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		AsOf:       run.AsOf,
		Jobs:       run.Jobs,
		Failures:   run.Failures,
	})
}
