package aggregate

import (
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/model"
)

// Summarize computes the elapsed time, bin and transition shares of one
// application. events need not be sorted; the input slice is not modified.
//
// A single event or identical first and last timestamps give zero elapsed
// time and an empty transition map.
func Summarize(applicationID string, events []model.WorkflowEvent, scheme binning.Scheme) model.ApplicationSummary {
	sorted := append([]model.WorkflowEvent(nil), events...)
	sortByTime(sorted)

	s := model.ApplicationSummary{
		ApplicationID: applicationID,
		Transitions:   make(map[model.TransitionKey]float64),
		Steps:         len(sorted),
	}
	if len(sorted) == 0 {
		s.BinIndex, s.Bin = scheme.Assign(0)
		return s
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	s.ElapsedDays = last.At.Sub(first.At).Seconds() / secondsPerDay
	s.BinIndex, s.Bin = scheme.Assign(s.ElapsedDays)
	s.FinalStatus = last.Status
	s.FinalLevel = last.Level
	s.LastActivity = last.At
	s.MaxLevel = first.Level
	for _, e := range sorted {
		if e.Level > s.MaxLevel {
			s.MaxLevel = e.Level
		}
	}

	if s.ElapsedDays <= 0 {
		return s
	}
	for i := 0; i+1 < len(sorted); i++ {
		key, ok := model.NewTransitionKey(sorted[i].Level, sorted[i+1].Level)
		if !ok {
			continue
		}
		delta := sorted[i+1].At.Sub(sorted[i].At).Seconds() / secondsPerDay
		s.Transitions[key] += delta / s.ElapsedDays * 100
	}
	return s
}

// SummarizeAll summarizes every group in order.
func SummarizeAll(groups []Group, scheme binning.Scheme) []model.ApplicationSummary {
	out := make([]model.ApplicationSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, Summarize(g.ApplicationID, g.Events, scheme))
	}
	return out
}
