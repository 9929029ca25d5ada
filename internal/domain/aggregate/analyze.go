package aggregate

import (
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/stats"
)

// Result is everything the reporting layer needs for one process and cohort.
type Result struct {
	Summaries    []model.ApplicationSummary
	Aggregates   []model.BinAggregate
	Distribution model.Distribution
	Levels       []LevelCount
	Elapsed      stats.Summary
	Select       SelectStats
}

// Empty reports whether no application matched.
func (r Result) Empty() bool { return len(r.Summaries) == 0 }

// Analyze filters events, summarizes each selected application and
// aggregates the population. The events slice is not modified.
func Analyze(events []model.WorkflowEvent, f Filter, scheme binning.Scheme, mode MeanMode) Result {
	groups, st := Select(events, f)
	summaries := SummarizeAll(groups, scheme)

	elapsed := make([]float64, len(summaries))
	for i, s := range summaries {
		elapsed[i] = s.ElapsedDays
	}

	return Result{
		Summaries:    summaries,
		Aggregates:   Aggregate(summaries, scheme, mode),
		Distribution: Distribute(summaries, scheme),
		Levels:       LevelDistribution(summaries),
		Elapsed:      stats.Describe(elapsed),
		Select:       st,
	}
}
