package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/okian/regflow/internal/adapters/render"
	"github.com/okian/regflow/internal/adapters/report"
	"github.com/okian/regflow/internal/adapters/repository"
	"github.com/okian/regflow/internal/adapters/source"
	"github.com/okian/regflow/internal/domain/aggregate"
	"github.com/okian/regflow/internal/domain/binning"
	"github.com/okian/regflow/internal/domain/dedupe"
	"github.com/okian/regflow/internal/domain/model"
	"github.com/okian/regflow/internal/domain/period"
	"github.com/okian/regflow/pkg/logger"
	"github.com/okian/regflow/pkg/metrics"
)

// workflowInput is the event log shared by all workflow jobs of a run.
type workflowInput struct {
	events    []model.WorkflowEvent
	lookup    map[string]string
	processes []string
}

// plan loads shared input and lists the jobs of a run in definition order:
// per process a status job followed by one job per cohort, then the
// period jobs.
func (s *Service) plan(ctx context.Context, st *runState, rep *RunReport) ([]job, error) {
	cfg := s.cfg
	var jobs []job

	if cfg.Workflow.Input != "" {
		in, err := s.loadWorkflow(ctx, st, rep)
		if err != nil {
			return nil, err
		}
		cohorts, err := cfg.Workflow.CohortList()
		if err != nil {
			return nil, err
		}
		mapping, err := cfg.Workflow.StatusMapping()
		if err != nil {
			return nil, err
		}
		scheme, err := cfg.Workflow.Scheme()
		if err != nil {
			return nil, err
		}
		for _, p := range in.processes {
			base := aggregate.Filter{
				Process: p,
				Source:  cfg.Workflow.Source(),
				Mapping: mapping,
				Lookup:  in.lookup,
				AsOf:    st.asOf,
			}
			jobs = append(jobs, s.statusJob(st, in, base))
			for _, c := range cohorts {
				f := base
				f.Cohort = c
				jobs = append(jobs, s.workflowJob(st, in, f, scheme))
			}
		}
	}

	if len(cfg.Periods.Jobs) > 0 {
		scheme, err := cfg.Periods.Scheme()
		if err != nil {
			return nil, err
		}
		parser := cfg.Periods.DateParser()
		for _, pj := range cfg.Periods.Jobs {
			jobs = append(jobs, s.periodJob(st, pj, parser, scheme))
		}
	}
	return jobs, nil
}

func (s *Service) loadWorkflow(ctx context.Context, st *runState, rep *RunReport) (*workflowInput, error) {
	wf := s.cfg.Workflow
	t, err := st.tables.get(wf.Input, wf.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadInput, err)
	}
	events, ls, err := source.DecodeEvents(t, wf.EventColumns(), wf.DateParser())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadInput, wf.Input, err)
	}
	metrics.RecordRowsDropped("bad_timestamp", ls.BadTimestamp)
	metrics.RecordRowsDropped("bad_level", ls.BadLevel)
	metrics.RecordRowsDropped("missing_id", ls.MissingID)
	if ls.Dropped() > 0 {
		s.logger.Warn(ctx, "workflow rows dropped", logger.String("input", wf.Input), logger.String("stats", ls.String()))
	}
	if ls.ProcessFromTab {
		s.logger.Warn(ctx, "process column missing; using table name",
			logger.String("column", wf.Columns.Process),
			logger.String("process", t.Name),
		)
	}
	rep.Load = LoadReport{Rows: ls.Rows, Events: ls.Events, Dropped: ls.Dropped()}

	if wf.Dedupe {
		d := dedupe.NewInMemoryDeduper(dedupe.WithExpectedSize(len(events)))
		var dup int
		events, dup = dedupe.Events(ctx, d, events)
		metrics.RecordEventDuplicates(dup)
		rep.Load.Duplicates = dup
		rep.Load.Events = len(events)
	}

	in := &workflowInput{events: events, processes: wf.Processes}
	if len(in.processes) == 0 {
		in.processes = source.Processes(events)
	}

	if wf.Source() == aggregate.Authoritative {
		lt, err := st.tables.get(wf.StatusInput, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadInput, err)
		}
		in.lookup, err = source.LoadStatusLookup(lt, wf.StatusIDColumn, wf.StatusColumn)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadInput, wf.StatusInput, err)
		}
		rep.Load.StatusEntries = len(in.lookup)
	}

	s.logger.Info(ctx, "workflow input loaded",
		logger.String("input", wf.Input),
		logger.Int("events", len(events)),
		logger.Int("duplicates", rep.Load.Duplicates),
		logger.Int("processes", len(in.processes)),
	)
	return in, nil
}

func (s *Service) statusJob(st *runState, in *workflowInput, f aggregate.Filter) job {
	name := f.Process + "/status"
	return job{
		report: JobReport{Name: name, Kind: KindStatus, Process: f.Process},
		run: func(ctx context.Context) (jobResult, error) {
			counts := aggregate.Categories(in.events, f)
			total := 0
			shares := make([]render.Share, 0, len(counts))
			for _, c := range counts {
				total += c.Count
				shares = append(shares, render.Share{Label: c.Category.String(), Count: c.Count})
			}
			res := jobResult{applications: total}
			if total == 0 {
				return res, nil
			}
			base := report.Slug(f.Process) + "_status"
			if err := st.w.StatusShares(base+".csv", name, counts); err != nil {
				return res, err
			}
			if s.cfg.Charts {
				err := s.chart(st, name, base+".png", func(path string) error {
					return s.renderer.Shares(path, f.Process+": final status", shares)
				})
				if err != nil {
					return res, err
				}
			}
			return res, nil
		},
	}
}

func (s *Service) workflowJob(st *runState, in *workflowInput, f aggregate.Filter, scheme binning.Scheme) job {
	cohort := f.Cohort.String()
	name := f.Process + "/" + cohort
	return job{
		report: JobReport{Name: name, Kind: KindWorkflow, Process: f.Process, Cohort: cohort},
		run: func(ctx context.Context) (jobResult, error) {
			res := aggregate.Analyze(in.events, f, scheme, s.cfg.Workflow.Mean())
			metrics.RecordApplicationsSummarized(f.Process, cohort, len(res.Summaries))
			if res.Select.MissingStatus > 0 {
				s.logger.Debug(ctx, "applications without authoritative status skipped",
					logger.String("job", name),
					logger.Int("count", res.Select.MissingStatus),
				)
			}
			out := jobResult{
				applications: len(res.Summaries),
				workflow: &repository.WorkflowResult{
					Process:      f.Process,
					Cohort:       cohort,
					Distribution: res.Distribution,
					Aggregates:   res.Aggregates,
				},
			}
			if res.Empty() {
				s.logger.Info(ctx, "no applications matched", logger.String("job", name))
				return out, nil
			}
			return out, s.writeWorkflow(st, name, f, res)
		},
	}
}

func (s *Service) writeWorkflow(st *runState, name string, f aggregate.Filter, res aggregate.Result) error {
	prefix := s.cfg.Workflow.LabelPrefix
	base := report.Slug(f.Process) + "_" + f.Cohort.String()
	if err := st.w.Bins(base+"_bins.csv", name, res.Distribution); err != nil {
		return err
	}
	if err := st.w.Transitions(base+"_transitions.csv", name, prefix, res.Aggregates); err != nil {
		return err
	}
	if err := st.w.Applications(base+"_applications.csv", name, prefix, res.Summaries); err != nil {
		return err
	}
	if !s.cfg.Charts {
		return nil
	}

	title := f.Process + ": " + f.Cohort.Title()
	if c := f.Cohort.Confidence(); c != "" {
		title += " [" + c + "]"
	}
	charts := []struct {
		file string
		draw func(path string) error
	}{
		{base + "_distribution.png", func(p string) error {
			return s.renderer.Distribution(p, title+" processing time", res.Distribution, res.Elapsed)
		}},
		{base + "_transitions.png", func(p string) error {
			return s.renderer.Transitions(p, title+" time share per transition", res.Aggregates)
		}},
		{base + "_levels.png", func(p string) error {
			return s.renderer.Levels(p, title+" authority level reached", res.Levels)
		}},
	}
	for _, c := range charts {
		if err := s.chart(st, name, c.file, c.draw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) periodJob(st *runState, pj period.Job, parser source.DateParser, scheme binning.Scheme) job {
	return job{
		report: JobReport{Name: pj.Name, Kind: KindPeriod},
		run: func(ctx context.Context) (jobResult, error) {
			t, err := st.tables.get(pj.Input, "")
			if err != nil {
				return jobResult{}, err
			}
			res, err := period.Compute(t, pj, parser, st.asOf, scheme)
			if err != nil {
				return jobResult{}, err
			}
			out := jobResult{period: &res}
			for _, sp := range res.Spans {
				out.applications = max(out.applications, len(sp.Values))
				if n := sp.Skipped.Negative; n > 0 {
					s.logger.Warn(ctx, "negative spans excluded",
						logger.String("job", pj.Name),
						logger.String("span", sp.Span.Label),
						logger.Int("count", n),
					)
				}
			}
			if res.GroupsSkipped {
				s.logger.Warn(ctx, "group column missing; group summaries skipped",
					logger.String("job", pj.Name),
					logger.String("column", pj.GroupBy),
				)
			}
			return out, s.writePeriod(st, res)
		},
	}
}

func (s *Service) writePeriod(st *runState, res period.Result) error {
	name := res.Job.Name
	base := report.Slug(name)
	if err := st.w.PeriodStats(base+"_stats.csv", res); err != nil {
		return err
	}
	if err := st.w.PeriodDistribution(base+"_distribution.csv", res); err != nil {
		return err
	}
	if !s.cfg.Charts {
		return nil
	}
	for _, sp := range res.Spans {
		file := base + "_" + report.Slug(sp.Span.Label) + "_histogram.png"
		err := s.chart(st, name, file, func(p string) error {
			return s.renderer.Histogram(p, name+": "+sp.Span.Label, sp.Values, sp.Summary)
		})
		if err != nil {
			return err
		}
	}
	if err := s.chart(st, name, base+"_binned.png", func(p string) error {
		return s.renderer.PeriodBins(p, name+": days per period", res.Spans)
	}); err != nil {
		return err
	}
	return s.chart(st, name, base+"_boxplot.png", func(p string) error {
		return s.renderer.BoxPlot(p, name+": spread per period", res.Spans)
	})
}

// chart draws into the output directory and lists the file. Charts with
// nothing to show are skipped.
func (s *Service) chart(st *runState, jobName, file string, draw func(path string) error) error {
	err := draw(st.w.Path(file))
	if errors.Is(err, render.ErrNoData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", file, err)
	}
	st.w.Record(file, "png", jobName)
	return nil
}

// tableCache reads each input once per run.
type tableCache struct {
	mu     sync.Mutex
	tables map[string]*source.Table
}

func newTableCache() *tableCache {
	return &tableCache{tables: make(map[string]*source.Table)}
}

func (c *tableCache) get(path, sheet string) (*source.Table, error) {
	key := path + "\x00" + sheet
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[key]; ok {
		return t, nil
	}
	var (
		t   *source.Table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case sheet != "" && (ext == ".xlsx" || ext == ".xlsm"):
		t, err = source.ReadXLSX(path, sheet)
	default:
		t, err = source.Read(path)
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordRowsRead(filepath.Base(path), len(t.Rows))
	c.tables[key] = t
	return t, nil
}
